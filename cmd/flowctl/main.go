package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tabflow/adapters/excel"
	"tabflow/app"
	"tabflow/domain/core"
	"tabflow/domain/workflow"
	"tabflow/internal"
	"tabflow/internal/report"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowctl",
		Short: "Run and inspect tabflow workflow templates from the command line",
	}

	rootCmd.AddCommand(
		newValidateCmd(),
		newInspectCmd(),
		newRunCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [template.json]",
		Short: "Parse and validate a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadTemplate(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("workflow %q: %d group(s), %d action(s)\n", wf.Name, len(wf.Groups), len(wf.Actions))
			if kinds := wf.UnsupportedKinds(); len(kinds) > 0 {
				fmt.Printf("warning: %d unsupported action kind(s) will be skipped: %s\n",
					len(kinds), joinKinds(kinds))
			}
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [template.json]",
		Short: "Show each group's final projected schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadTemplate(args[0])
			if err != nil {
				return err
			}
			for _, group := range wf.Groups {
				schema, err := wf.ProjectedSchema(group.ID)
				if err != nil {
					return fmt.Errorf("group %q: %w", group.Name, err)
				}
				fmt.Printf("group %q (%d action(s)):\n", group.Name, len(wf.ActionsFor(group.ID)))
				for _, col := range schema.Columns {
					fmt.Printf("  %-30s %s\n", col.Name, col.Type)
				}
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var groupName string
	var files []string
	var sheet string
	var headerRow, headerCol int
	var exportPath string
	var showReport bool

	cmd := &cobra.Command{
		Use:   "run [template.json]",
		Short: "Execute one group of a template against fresh source files",
		Long: `Execute a saved workflow against newly supplied files.

Example: flowctl run clean.workflow.json --group Sales --file jan.xlsx --file feb.xlsx --out cleaned.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadTemplate(args[0])
			if err != nil {
				return err
			}

			group, ok := wf.GroupByName(groupName)
			if !ok {
				return fmt.Errorf("%w: group %q", core.ErrGroupNotFound, groupName)
			}

			reader := excel.NewDataReader()
			service := app.NewWorkflowService(reader)
			engine := app.NewEngine(reader, internal.NewLogger(internal.LevelWarn))

			if len(files) > 0 {
				if err := service.Rebind(cmd.Context(), wf, group.ID, files); err != nil {
					return err
				}
			}
			if sheet != "" {
				group.SheetName = sheet
			}
			if cmd.Flags().Changed("header-row") {
				group.HeaderRow = headerRow
			}
			if cmd.Flags().Changed("header-col") {
				group.HeaderCol = headerCol
			}

			result, err := engine.Run(cmd.Context(), wf, group.ID)
			if err != nil {
				return err
			}

			if showReport {
				fmt.Println(report.RunReport{
					WorkflowName: wf.Name,
					GroupName:    group.Name,
					Result:       result,
				}.Render())
			} else {
				out, err := json.MarshalIndent(result.Log, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				fmt.Printf("%d row(s) out\n", result.Table.RowCount())
			}

			if exportPath != "" {
				writer := excel.NewTableWriter()
				if err := writer.WriteTable(cmd.Context(), result.Table, exportPath); err != nil {
					return err
				}
				fmt.Printf("exported to %s\n", exportPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&groupName, "group", "", "group name to execute (required)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "source file, repeatable, replaces the group's files")
	cmd.Flags().StringVar(&sheet, "sheet", "", "override the group's sheet name")
	cmd.Flags().IntVar(&headerRow, "header-row", 0, "override the group's header row offset")
	cmd.Flags().IntVar(&headerCol, "header-col", 0, "override the group's header column offset")
	cmd.Flags().StringVar(&exportPath, "out", "", "write the result table to this path")
	cmd.Flags().BoolVar(&showReport, "report", false, "print the markdown run report instead of the raw log")
	cmd.MarkFlagRequired("group")

	return cmd
}

func loadTemplate(path string) (*workflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return workflow.Deserialize(data)
}

func joinKinds(kinds []workflow.ActionKind) string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return strings.Join(out, ", ")
}
