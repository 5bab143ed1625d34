package main

import (
	"fmt"
	core_log "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/elementsproject/lnregtest/log"
	"github.com/elementsproject/lnregtest/network"
)

type options struct {
	NodedataFolder    string `long:"nodedata_folder" description:"directory the network fixture is persisted in" required:"true"`
	NetworkDefinition string `long:"network_definition" description:"named topology or path to a yaml definition" default:"star_ring"`
	NodeLimit         string `long:"node_limit" description:"only provision nodes up to this symbolic name"`
	FromScratch       bool   `long:"from_scratch" description:"create a fresh network instead of restoring the fixture"`
}

func main() {
	err := run()
	if err != nil {
		core_log.Fatal(err)
	}
}

func run() error {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}

	var netOpts []network.Option
	if opts.NodeLimit != "" {
		netOpts = append(netOpts, network.WithNodeLimit(opts.NodeLimit))
	}

	testnet, err := network.NewRegtestNetwork(
		opts.NetworkDefinition,
		opts.NodedataFolder,
		opts.FromScratch,
		netOpts...,
	)
	if err != nil {
		return err
	}

	log.Infof("bringing up network %s in %s", opts.NetworkDefinition, opts.NodedataFolder)
	if err := testnet.RunNoCleanup(); err != nil {
		return err
	}
	defer testnet.Cleanup()

	testnet.PrintMappings()
	testnet.PrintNetworkInfo()
	fmt.Println("network is running, press ctrl-c to tear it down")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	log.Infof("received signal: %v, tearing down", sig)
	return nil
}
