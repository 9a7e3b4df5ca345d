package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"relay/client"
	"relay/discovery"
	"relay/discovery/mdns"
	"relay/log"
)

func main() {
	var (
		serverAddr string
		lookup     time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "relay-client",
		Short: "Chat through a relay from the terminal",
		Long: `relay-client sends every line typed on stdin to a relay and prints whatever
the other peers send. Without --server-addr the relays announced over mDNS
are listed and one is picked interactively.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverAddr == "" {
				addr, err := pickRelay(lookup)
				if err != nil {
					return err
				}
				serverAddr = addr
			}
			return chat(serverAddr)
		},
	}
	rootCmd.Flags().StringVar(&serverAddr, "server-addr", "", "relay address to connect to")
	rootCmd.Flags().DurationVar(&lookup, "lookup-timeout", 2*time.Second, "how long to wait for mDNS answers")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal("relay-client stopped", "error", err)
	}
}

func pickRelay(timeout time.Duration) (string, error) {
	var reg discovery.Registry = mdns.NewRegistry()
	relays, err := reg.Lookup(timeout)
	if err != nil {
		return "", err
	}
	switch len(relays) {
	case 0:
		return "", errors.New("no relay found, use --server-addr")
	case 1:
		return relays[0].Addr, nil
	}

	sel := promptui.Select{
		Label: "Relay",
		Items: relays,
		Templates: &promptui.SelectTemplates{
			Active:   "▸ {{ .Name | cyan }} ({{ .Addr }})",
			Inactive: "  {{ .Name }} ({{ .Addr }})",
			Selected: "relay: {{ .Name | green }}",
		},
	}
	idx, _, err := sel.Run()
	if err != nil {
		return "", fmt.Errorf("error select relay. %w", err)
	}
	return relays[idx].Addr, nil
}

func chat(addr string) error {
	ctx, doneFn := signal.NotifyContext(
		context.Background(),
		syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT,
	)
	defer doneFn()

	c, err := client.Connect(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	log.Info("connected", "addr", addr, "as", c.LocalAddr())

	go func() {
		defer doneFn()
		err := c.Handle(ctx, client.HandlerFunc(func(ctx context.Context, data []byte) {
			os.Stdout.Write(data)
		}))
		if err != nil {
			log.Err("connection to relay lost", "error", err)
		}
	}()

	go func() {
		defer doneFn()
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := append(scanner.Bytes(), '\n')
			if err := c.Send(ctx, line); err != nil {
				log.Err("error send message to relay", "error", err)
				return
			}
		}
	}()

	<-ctx.Done()
	return nil
}
