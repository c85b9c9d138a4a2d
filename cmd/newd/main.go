package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/B4PzwL3YVGa6/newd/internal/config"
	"github.com/B4PzwL3YVGa6/newd/internal/engine"
	"github.com/B4PzwL3YVGa6/newd/internal/frontend"
	"github.com/B4PzwL3YVGa6/newd/internal/log"
	"github.com/B4PzwL3YVGa6/newd/internal/supervisor"
)

var (
	version = "dev"
	commit  = "n/a"
	date    = "n/a"
)

func main() {
	var (
		configPath = flag.String("f", "/etc/newd.conf", "Path to configuration file")
		sockName   = flag.String("s", frontend.DefaultSocket, "Path to control socket")
		debug      = flag.Bool("d", false, "Do not daemonize, log to stderr")
		verbose    = flag.Bool("v", false, "Enable debug logging")
		checkOnly  = flag.Bool("n", false, "Check the configuration file and exit")
		engineRole = flag.Bool("E", false, "Run as the engine process (internal)")
		frontRole  = flag.Bool("F", false, "Run as the frontend process (internal)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "newd network configuration daemon\n")
		fmt.Fprintf(os.Stderr, "Version: %s (Commit: %s, Date: %s)\n\n", version, commit, date)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		log.SetVerbose(true)
	}

	switch {
	case *engineRole && *frontRole:
		flag.Usage()
		os.Exit(1)
	case *engineRole:
		log.SetProcess("engine")
		if err := engine.Run(); err != nil {
			log.Fatalf("%v", err)
		}
		return
	case *frontRole:
		log.SetProcess("frontend")
		if err := frontend.Run(*sockName); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if *checkOnly {
		if _, err := config.Load(*configPath); err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println("configuration OK")
		return
	}

	if os.Geteuid() != 0 {
		log.Fatalf("need root privileges")
	}

	executable, err := os.Executable()
	if err != nil {
		log.Fatalf("cannot locate own executable: %v", err)
	}

	log.SetProcess("main")
	s := supervisor.New(supervisor.Options{
		ConfigPath: *configPath,
		SockName:   *sockName,
		Debug:      *debug,
		Verbose:    *verbose,
		Executable: executable,
	})
	if err := s.Run(); err != nil {
		log.Fatalf("%v", err)
	}
}
