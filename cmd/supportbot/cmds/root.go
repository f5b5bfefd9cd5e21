// Package cmds holds the supportbot subcommands.
package cmds

import (
	geppettosections "github.com/go-go-golems/geppetto/pkg/sections"
	"github.com/go-go-golems/glazed/pkg/cli"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/spf13/cobra"
)

// AddToRootCommand registers every subcommand on root.
func AddToRootCommand(root *cobra.Command) error {
	serve, err := NewServeCommand()
	if err != nil {
		return err
	}
	chat, err := NewChatCommand()
	if err != nil {
		return err
	}
	for _, c := range []glazed_cmds.Command{serve, chat} {
		cc, err := cli.BuildCobraCommand(c, cli.WithCobraMiddlewaresFunc(geppettosections.GetCobraCommandGeppettoMiddlewares))
		if err != nil {
			return err
		}
		root.AddCommand(cc)
	}

	ingest, err := NewIngestCommand()
	if err != nil {
		return err
	}
	search, err := NewSearchCommand()
	if err != nil {
		return err
	}
	for _, c := range []glazed_cmds.Command{ingest, search} {
		cc, err := cli.BuildCobraCommand(c)
		if err != nil {
			return err
		}
		root.AddCommand(cc)
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted support sessions and escalation tickets",
	}
	list, err := NewSessionsListCommand()
	if err != nil {
		return err
	}
	show, err := NewSessionsShowCommand()
	if err != nil {
		return err
	}
	tickets, err := NewTicketsCommand()
	if err != nil {
		return err
	}
	for _, c := range []glazed_cmds.Command{list, show, tickets} {
		cc, err := cli.BuildCobraCommand(c)
		if err != nil {
			return err
		}
		sessionsCmd.AddCommand(cc)
	}
	root.AddCommand(sessionsCmd)
	return nil
}
