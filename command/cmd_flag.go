package command

import (
	"errors"
	"fmt"
	"github.com/hetianyi/gotftp/common"
	"github.com/urfave/cli"
	"os"
)

// Parse parses command flags using `github.com/urfave/cli`
func Parse(arguments []string) {
	appFlag := cli.NewApp()
	appFlag.Version = common.VERSION
	appFlag.HideVersion = true
	appFlag.Name = "gotftp"
	appFlag.Usage = "gotftp"
	appFlag.HelpName = "gotftp"
	appFlag.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:        "version, v",
			Usage:       `show version`,
			Destination: &showVersion,
		},
	}

	appFlag.Commands = []cli.Command{
		{
			Name:  "server",
			Usage: "start as tftp server",
			Action: func(c *cli.Context) error {
				finalCommand = common.CMD_BOOT_SERVER
				return nil
			},
			Flags: append(commonFlags(),
				cli.StringFlag{
					Name:        "bind-address",
					Value:       "",
					Usage:       "bind listening address",
					Destination: &bindAddress,
				},
				cli.IntFlag{
					Name:        "port, p",
					Value:       0,
					Usage:       "server udp port (default 69)",
					Destination: &port,
				},
				cli.StringFlag{
					Name:        "root-dir, r",
					Value:       "",
					Usage:       "directory served to clients (default work dir)",
					Destination: &rootDir,
				},
				cli.StringFlag{
					Name:        "data-dir",
					Value:       "",
					Usage:       "data directory for the transfer journal",
					Destination: &dataDir,
				},
				cli.BoolFlag{
					Name:        "read-only",
					Usage:       "refuse write requests",
					Destination: &readOnly,
				},
				cli.BoolFlag{
					Name:        "enable-http",
					Usage:       "enable http status api",
					Destination: &enableHttp,
				},
				cli.IntFlag{
					Name:        "http-port",
					Value:       0,
					Usage:       "http status api port (default 8069)",
					Destination: &httpPort,
				},
				cli.BoolFlag{
					Name:        "disable-journal",
					Usage:       "do not record finished transfers",
					Destination: &disableJournal,
				},
				cli.StringFlag{
					Name:        "log-dir",
					Value:       "",
					Usage:       "set log directory",
					Destination: &logDir,
				},
				cli.IntFlag{
					Name:  "max-logfile-size",
					Value: 0,
					Usage: `rolling log file max size, options:
	(0|64|128|256|512|1024)`,
					Destination: &maxLogfileSize,
				},
				cli.StringFlag{
					Name:        "log-rotation-interval",
					Value:       "d",
					Usage:       "log rotation interval(h|d|m|y)",
					Destination: &logRotationInterval,
				},
				cli.BoolFlag{
					Name:        "disable-logfile",
					Usage:       "disable save log to file",
					Destination: &disableSaveLogfile,
				},
			),
		},
		{
			Name:  "client",
			Usage: "transfer files with a tftp server",
			Subcommands: []cli.Command{
				{
					Name:      "get",
					Usage:     "download a file from the server",
					ArgsUsage: "<remote file>",
					Action: func(c *cli.Context) error {
						finalCommand = common.CMD_GET_FILE
						if c.NArg() == 0 {
							return errors.New(`Err: no file provided.
Usage: gotftp client get [--name <local file>] <remote file>`)
						}
						transferFile = c.Args()[0]
						return nil
					},
					Flags: append(clientFlags(),
						cli.StringFlag{
							Name:        "name, n",
							Value:       "",
							Usage:       "local file name (default base name of the remote file)",
							Destination: &customFileName,
						},
					),
				},
				{
					Name:      "put",
					Usage:     "upload a file to the server",
					ArgsUsage: "<local file>",
					Action: func(c *cli.Context) error {
						finalCommand = common.CMD_PUT_FILE
						if c.NArg() == 0 {
							return errors.New(`Err: no file provided.
Usage: gotftp client put [--name <remote file>] <local file>`)
						}
						transferFile = c.Args()[0]
						return nil
					},
					Flags: append(clientFlags(),
						cli.StringFlag{
							Name:        "name, n",
							Value:       "",
							Usage:       "remote file name (default base name of the local file)",
							Destination: &customFileName,
						},
					),
				},
				{
					Name:  "menu",
					Usage: "interactive get/put menu",
					Action: func(c *cli.Context) error {
						finalCommand = common.CMD_MENU
						return nil
					},
					Flags: clientFlags(),
				},
			},
		},
	}

	cli.AppHelpTemplate = `
Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}{{if .VisibleCommands}}

Commands:{{range .VisibleCategories}}
{{if .Name}}
   {{.Name}}:{{end}}{{range .VisibleCommands}}
     {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}

Options:

   {{range $index, $option := .VisibleFlags}}{{if $index}}{{end}}{{$option}}
   {{end}}{{end}}
`

	cli.CommandHelpTemplate = `
Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}}{{if .VisibleFlags}} [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}

{{.Usage}}{{if .VisibleFlags}}

Options:

   {{range .VisibleFlags}}{{.}}
   {{end}}{{end}}
`

	cli.SubcommandHelpTemplate = `
Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} command{{if .VisibleFlags}} [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}

{{if .Description}}{{.Description}}{{else}}{{.Usage}}{{end}}

Commands:
{{range .VisibleCategories}}{{if .Name}}
   {{.Name}}:{{end}}{{range .VisibleCommands}}
     {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{end}}{{if .VisibleFlags}}

Options:

   {{range .VisibleFlags}}{{.}}
   {{end}}{{end}}
`

	appFlag.Action = func(c *cli.Context) error {
		if showVersion {
			cli.ShowVersion(c)
			os.Exit(0)
			return nil
		}
		cli.ShowAppHelp(c)
		os.Exit(0)
		return nil
	}

	err := appFlag.Run(arguments)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
		return
	}

	if finalCommand == common.CMD_SHOW_HELP {
		os.Exit(0)
	}

	call(finalCommand)
}

// commonFlags are the flags shared by every command.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Value:       "",
			Usage:       "use custom json config file",
			Destination: &configFile,
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "",
			Usage: `set log level, available options:
	(trace|debug|info|warn|error|fatal)`,
			Destination: &logLevel,
		},
		cli.IntFlag{
			Name:        "timeout",
			Value:       0,
			Usage:       "retransmission timeout in milliseconds (default 1000)",
			Destination: &timeout,
		},
		cli.IntFlag{
			Name:        "retries",
			Value:       -1,
			Usage:       "retransmissions before a transfer is given up (default 5)",
			Destination: &retries,
		},
	}
}

func clientFlags() []cli.Flag {
	return append(commonFlags(),
		cli.StringFlag{
			Name:        "server, s",
			Value:       "",
			Usage:       "tftp server, host[:port]",
			Destination: &server,
		},
		cli.StringFlag{
			Name:        "mode, m",
			Value:       "",
			Usage:       "transfer mode (default octet)",
			Destination: &mode,
		},
	)
}
