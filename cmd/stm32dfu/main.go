package main

import (
	"os"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	"github.com/moffa90/go-stm32dfu/internal/configpaths"
	"github.com/moffa90/go-stm32dfu/internal/log"
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, parserOptions(&cli, findUserConfig(os.Args[1:]))...)

	logger, closers, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	raw := log.NewRaw(nil)
	if cli.Log.RawFile != "" {
		f, err := os.OpenFile(cli.Log.RawFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Error("failed to open raw log file", "file", cli.Log.RawFile, "error", err)
		} else {
			raw = log.NewRaw(f)
			closers = append(closers, f)
		}
	}

	ctx.Bind(logger)
	ctx.BindTo(raw, (*log.RawLogger)(nil))

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

// parserOptions configures kong. Config files are loaded in JSON, YAML and
// TOML priority order; flags and environment override them.
func parserOptions(cli *CLI, userConfig string) []kong.Option {
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userConfig)

	return []kong.Option{
		kong.Name("stm32dfu"),
		kong.Description("Flash STM32 microcontrollers through the ST system bootloader over USB DFU"),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	}
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("STM32DFU_CONFIG")
}
