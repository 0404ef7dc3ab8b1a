package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/m3rciful/chatloop/core/bootstrap"
	"github.com/m3rciful/chatloop/core/buildinfo"
	corecmd "github.com/m3rciful/chatloop/core/cmd"
	coreconfig "github.com/m3rciful/chatloop/core/config"
	"github.com/m3rciful/chatloop/core/session"
	coretelegram "github.com/m3rciful/chatloop/core/telegram"
	"github.com/m3rciful/chatloop/internal/demo"
	"github.com/m3rciful/chatloop/internal/profiles"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the YAML config (overrides CONFIG_PATH)")
		storeToken = flag.String("store-token", "", "Read a bot token from stdin and save it in the OS keychain under this account")
		version    = flag.Bool("version", false, "Print the build and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.String())
		return
	}
	if *storeToken != "" {
		if err := saveToken(*storeToken); err != nil {
			log.Fatal(err)
		}
		return
	}

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		ConfigPath:        *configPath,
		App:               app,
	})
	if err != nil {
		log.Fatal(err)
	}
}

func app(_ *coreconfig.Config, infra *bootstrap.Result) (coretelegram.RunOptions, error) {
	var store profiles.Store = profiles.NewMemoryStore()
	if infra != nil && infra.DB != nil {
		store = profiles.NewSQLStore(infra.DB)
	}
	return coretelegram.RunOptions{
		Menu: demo.Menu(),
		NewHandler: func(rt coretelegram.Runtime) (session.Handler, error) {
			return demo.New(rt.Messenger, store, rt.Username()), nil
		},
	}, nil
}

func saveToken(account string) error {
	fmt.Fprint(os.Stderr, "bot token: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read token: %w", err)
	}
	if err := coreconfig.StoreToken(account, strings.TrimSpace(line)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "token stored in keychain service %q, account %q\n", coreconfig.KeyringService, account)
	return nil
}
