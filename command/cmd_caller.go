package command

import (
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gotftp/svc"
	"github.com/hetianyi/gox/logger"
	"os"
)

// call calls handler function due to command.
func call(cmd common.Command) {
	var err error
	switch cmd {
	case common.CMD_BOOT_SERVER:
		common.BootAs = common.SERVER
		ConfigAssembly(common.SERVER)
		svc.BootTftpServer()
	case common.CMD_GET_FILE:
		common.BootAs = common.CLIENT
		ConfigAssembly(common.CLIENT)
		err = handleGetFile()
	case common.CMD_PUT_FILE:
		common.BootAs = common.CLIENT
		ConfigAssembly(common.CLIENT)
		err = handlePutFile()
	case common.CMD_MENU:
		common.BootAs = common.CLIENT
		ConfigAssembly(common.CLIENT)
		err = handleMenu()
	}
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
