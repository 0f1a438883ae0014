package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"time"

	"github.com/realDragonium/Slumber/config"
	"github.com/realDragonium/Slumber/worker"
	log "github.com/sirupsen/logrus"
)

var (
	version        = "0.3.0"
	defaultCfgPath = config.MainConfigFileName
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("Didnt receive enough arguments, try adding 'run', 'test-config', 'wake', 'sleep' or 'status' after the command")
	}

	flags := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	cfgPath := flags.String("config", defaultCfgPath, "`Path` of the config file")
	flags.Parse(os.Args[2:])

	switch os.Args[1] {
	case "run":
		if err := worker.RunProxy(*cfgPath, version); err != nil {
			log.Fatal(err)
		}
	case "test-config":
		cfg, err := config.ReadSlumberConfig(*cfgPath)
		if err != nil {
			log.Fatal(err)
		}
		if err := config.VerifyConfig(cfg); err != nil {
			log.Fatalf("config is invalid:\n%v", err)
		}
		log.Infof("config at %s is valid", *cfgPath)
	case "wake", "sleep":
		if err := callAPI(*cfgPath, http.MethodPost, os.Args[1]); err != nil {
			log.Fatalf("got error: %v ", err)
		}
		log.Info("success")
	case "status":
		if err := callAPI(*cfgPath, http.MethodGet, "status"); err != nil {
			log.Fatalf("got error: %v ", err)
		}
	default:
		log.Fatalf("unknown command %q", os.Args[1])
	}
}

func callAPI(cfgPath, method, endpoint string) error {
	cfg, err := config.ReadSlumberConfig(cfgPath)
	if err != nil {
		return err
	}
	if !cfg.API.Enabled {
		return fmt.Errorf("api is disabled in %s", cfgPath)
	}

	url := fmt.Sprintf("http://%s/%s", cfg.API.Bind, endpoint)
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	client := http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", resp.Status, body)
	}
	if method == http.MethodGet {
		fmt.Print(string(body))
	}
	return nil
}
