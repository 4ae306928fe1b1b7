package util

import (
	"fmt"
	"github.com/hetianyi/gotftp/common"
	"github.com/logrusorgru/aurora"
)

func PrintLogo() {
	fmt.Print(aurora.Cyan(`
   ____    ____   _______  _____  _____  ____
  / ___\  / __ \ /__  __/ /__ __//  __/ / __ \   `).String() + aurora.BrightGreen("GoTFTP::v"+common.VERSION).String() + aurora.Cyan(`
 / /_/\  / /_/ /   / /      / /  / /__ / /_/ /   A tiny tftp server and client.
 \____/  \____/   /_/      /_/  /_/   / ____/    github.com/hetianyi/gotftp
                                     /_/
`).String() + "\n")
}
