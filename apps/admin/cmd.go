package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

type commandLine struct {
	db     *sqlx.DB
	calSvc *calendar.Service
	open   calendar.Opener
	in     io.Reader
	out    io.Writer
}

func (cli *commandLine) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Academic calendar administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetIn(cli.in)
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.newMigrateCommand(),
		cli.newSeedCommand(),
		cli.newHolidaysCommand(),
		cli.newInitCommand(),
		cli.newProcessCommand(),
	)
	return root
}

// run executes the command line `args`, program name included.
func (cli *commandLine) run(args []string) error {
	root := cli.newRootCommand()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// confirm asks a yes/no question; it is always yes when stdin is not a terminal.
func (cli *commandLine) confirm(question string) (bool, error) {
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return true, nil
	}
	fmt.Fprintf(cli.out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, errors.Wrap(err, "reading answer")
	}
	answer = core.CleanString(answer, true)
	return answer == "y" || answer == "yes", nil
}

func (cli *commandLine) success(format string, a ...interface{}) {
	fmt.Fprintln(cli.out, color.New(color.Bold, color.FgGreen).Sprint("✔"), fmt.Sprintf(format, a...))
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
