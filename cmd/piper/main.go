// piper — инструмент командной строки: запуск, проверка и форматирование
// pipeline, генерация meta-pipeline, история запусков на агентах.
//
// Использование:
//
//	piper [--config FILE] [--json] [-v] <command> [flags]
//
// Команды:
//
//	init      Создать piper.yaml
//	run       Выполнить pipeline локально или на агенте
//	check     Проверить pipeline
//	fmt       Отформатировать pipeline
//	generate  Материализовать meta-pipeline
//	agents    Список агентов
//	history   История запусков на агенте
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/piper/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
