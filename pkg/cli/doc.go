/*
Package cli provides command-line helpers for the governor command.

Output Formatting:

Commands print results as text, JSON or CSV, selected with --output.
Results that implement Tabular render as aligned columns in text and as
rows in CSV; JSON always encodes the value itself:

	format, err := cli.ParseOutputFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), result)

Exit Codes:

ExitCode maps a command error to the process status. The enforce command
returns an ExitError carrying the verdict code (0 allow, 1 deny,
2 quarantine, 3 erase), configuration errors exit 2 and other failures 1.

Progress Reporting:

Commands working through many files report progress on stderr:

	progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "files")
	progress.Start(len(files))
	for _, f := range files {
		progress.Step(check(f) == nil)
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()
*/
package cli
