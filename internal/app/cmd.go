package app

import (
	"fmt"
	"strings"
)

// Command はinventoryのサブコマンド。
type Command string

const (
	// CommandServe はAPIサーバーとクリーンアップジョブを起動する。
	CommandServe Command = "serve"
	// CommandWorker はクリーンアップジョブだけを実行する。PostgreSQLバックエンド専用。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はIB_LISTENの/healthを叩いて終了する。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// ParseCommand はos.Args[1:]の先頭からサブコマンドを決める。
// 引数がなければserveとし、知らないサブコマンドはエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (available: %s)", args[0], commandNames())
}

func commandNames() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
