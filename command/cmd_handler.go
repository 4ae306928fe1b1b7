package command

import (
	"bufio"
	"fmt"
	"github.com/hetianyi/gotftp/api"
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/util"
	"github.com/hetianyi/gox/logger"
	json "github.com/json-iterator/go"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var client api.ClientAPI

// initClient initializes APIClient.
func initClient() error {
	c := common.InitializedClientConfiguration
	if err := util.ValidateClientConfig(c); err != nil {
		return err
	}
	client = api.NewClient()
	client.SetConfig(&api.Config{
		Server:  c.ParsedServer.ConnectionString(),
		Mode:    c.Mode,
		Timeout: time.Duration(c.Timeout) * time.Millisecond,
		Retries: c.Retries,
	})
	return nil
}

// handleGetFile handles download by client cli.
func handleGetFile() error {
	if err := initClient(); err != nil {
		return err
	}
	local := customFileName
	if local == "" {
		local = filepath.Base(transferFile)
	}
	return getFile(client, os.Stdout, transferFile, local)
}

// handlePutFile handles upload by client cli.
func handlePutFile() error {
	if err := initClient(); err != nil {
		return err
	}
	remote := customFileName
	if remote == "" {
		remote = filepath.Base(transferFile)
	}
	return putFile(client, os.Stdout, transferFile, remote)
}

// handleMenu runs the interactive menu on the terminal.
func handleMenu() error {
	if err := initClient(); err != nil {
		return err
	}
	return RunMenu(client, os.Stdin, os.Stdout)
}

func getFile(c api.ClientAPI, out io.Writer, remote, local string) error {
	logger.Info("downloading ", remote, " to ", local)
	ret, err := c.Get(remote, local)
	if err != nil {
		return err
	}
	printResult(out, ret)
	return nil
}

func putFile(c api.ClientAPI, out io.Writer, local, remote string) error {
	logger.Info("uploading ", local, " as ", remote)
	ret, err := c.Put(local, remote)
	if err != nil {
		return err
	}
	printResult(out, ret)
	return nil
}

func printResult(out io.Writer, ret *api.TransferResult) {
	bs, _ := json.MarshalIndent(ret, "", "  ")
	fmt.Fprintln(out, string(bs))
}

// RunMenu reads menu choices from in until Exit or end of input.
// A failed transfer is reported and the menu continues.
func RunMenu(c api.ClientAPI, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	prompt := func(msg string) (string, bool) {
		fmt.Fprint(out, msg)
		if !scanner.Scan() {
			return "", false
		}
		return strings.TrimSpace(scanner.Text()), true
	}
	for {
		fmt.Fprint(out, "\n1. GET\n2. PUT\n0. Exit\n")
		choice, ok := prompt("> ")
		if !ok {
			return scanner.Err()
		}
		switch choice {
		case "0":
			return nil
		case "1":
			name, ok := prompt("file to get: ")
			if !ok {
				return scanner.Err()
			}
			if name == "" {
				continue
			}
			if err := getFile(c, out, name, filepath.Base(name)); err != nil {
				fmt.Fprintln(out, "get failed:", err)
			}
		case "2":
			name, ok := prompt("file to put: ")
			if !ok {
				return scanner.Err()
			}
			if name == "" {
				continue
			}
			if err := putFile(c, out, name, filepath.Base(name)); err != nil {
				fmt.Fprintln(out, "put failed:", err)
			}
		default:
			fmt.Fprintln(out, "unknown choice:", choice)
		}
	}
}
