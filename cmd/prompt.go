package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/joescharf/agentpipe/internal/llm"
	"github.com/joescharf/agentpipe/internal/project"
)

var promptGenerate bool

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Render the implementation prompt for an issue",
	Long: `Scan the working tree and render the prompt the pipeline would send to
the LLM. With --generate, send it and print the raw reply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := taskFromFlags()
		if err != nil {
			return err
		}

		snap, err := project.NewScanner(afero.NewOsFs()).Snapshot(workDir())
		if err != nil {
			ui.Warning("Project scan failed: %v", err)
		}
		prompt := llm.BuildImplementationPrompt(task, snap)

		if !promptGenerate {
			fmt.Fprint(ui.Out, prompt)
			return nil
		}

		gen, err := newGenerator(cmd.Context())
		if err != nil {
			return err
		}
		ui.VerboseLog("Generating with %s", gen.Name())
		reply, err := gen.Generate(cmd.Context(), prompt)
		if err != nil {
			return err
		}
		fmt.Fprintln(ui.Out, reply)
		return nil
	},
}

func init() {
	addIssueFlags(promptCmd)
	promptCmd.Flags().BoolVar(&promptGenerate, "generate", false, "Send the prompt to the configured LLM and print the reply")
	rootCmd.AddCommand(promptCmd)
}
