package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/normalize"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the normalization rules",
	Long:  `View the owner, class and title rules and dry-run them against input.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the resolution rules",
	Long: `List every rule the normalizer applies, in resolution order: the
owner-name table, the class patterns shared by path and WM-class
matching, and the title substrings.`,
	Example: `  # Rules as a table
  active-app-worker rules list

  # Rules as JSON
  active-app-worker rules list --format json`,
	RunE: runRulesList,
}

var rulesTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Dry-run the normalizer",
	Long: `Feed a hand-built observation through the normalizer and print which
rule resolves it. Useful when deciding whether a new app needs a rule.`,
	Example: `  # An owner name straight from the table
  active-app-worker rules test --owner firefox

  # Path heuristics only
  active-app-worker rules test --path /opt/brave.com/brave/brave

  # Title heuristics with a WM class on standby
  active-app-worker rules test --title "user@host: ~" --class Gnome-terminal`,
	RunE: runRulesTest,
}

var (
	rulesFormat string
	testOwner   string
	testPath    string
	testTitle   string
	testClass   string
)

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesTestCmd)

	rulesListCmd.Flags().StringVarP(&rulesFormat, "format", "f", "table", "output format (table or json)")

	rulesTestCmd.Flags().StringVar(&testOwner, "owner", "", "owner process name")
	rulesTestCmd.Flags().StringVar(&testPath, "path", "", "owner executable path")
	rulesTestCmd.Flags().StringVar(&testTitle, "title", "", "window title")
	rulesTestCmd.Flags().StringVar(&testClass, "class", "", "wm class answered by a fixed resolver")
}

func runRulesList(cmd *cobra.Command, args []string) error {
	rules := normalize.Rules()

	if rulesFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rules)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KIND\tMATCH\tAPP")
	fmt.Fprintln(w, "----\t-----\t---")

	owners := make([]string, 0, len(rules.OwnerMap))
	for owner := range rules.OwnerMap {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		fmt.Fprintf(w, "owner\t%s\t%s\n", owner, rules.OwnerMap[owner])
	}

	for _, rule := range rules.ClassRules {
		fmt.Fprintf(w, "class\t%s\t%s\n", rule.Pattern, rule.App)
	}
	for _, rule := range rules.TitleRules {
		fmt.Fprintf(w, "title\t%s\t%s\n", strings.Join(rule.Needles, ", "), rule.App)
	}

	return nil
}

// fixedResolver answers every wm-class query with one configured string
type fixedResolver struct {
	class string
}

func (r fixedResolver) ResolveClass(windowID uint32) (string, error) {
	if r.class == "" {
		return "", fmt.Errorf("no class configured")
	}
	return r.class, nil
}

func runRulesTest(cmd *cobra.Command, args []string) error {
	sample := &config.Sample{
		OwnerName: testOwner,
		OwnerPath: testPath,
		Title:     testTitle,
	}
	if testClass != "" {
		// A window id makes the normalizer consult the resolver.
		sample.WindowID = 1
	}

	res := normalize.New(fixedResolver{class: testClass}).Normalize(sample)

	fmt.Printf("App:        %s\n", res.App)
	fmt.Printf("Reason:     %s\n", res.Reason)
	fmt.Printf("Confidence: %s\n", res.Reason.Confidence())
	return nil
}
