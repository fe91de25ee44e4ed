package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/policy"
	"github.com/Nontawatt/OpenMediaTrust/pkg/policyloader"
)

var errPolicyFailed = errors.New("policy evaluation failed")

var (
	policyName string
	policyDir  string
)

var policyCmd = &cobra.Command{
	Use:   "policy [MANIFEST]",
	Short: "Evaluate a manifest against organizational policies",
	Long: `Evaluate a manifest against one policy (--name) or every loaded policy.
Built-in policies are always available; bundles from the policy directory
are loaded on top. Without a manifest the loaded policy names are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicy,
}

func init() {
	policyCmd.Flags().StringVar(&policyName, "name", "", "policy to evaluate (default: all)")
	policyCmd.Flags().StringVar(&policyDir, "dir", "", "policy bundle directory (default from config)")
	rootCmd.AddCommand(policyCmd)
}

func newPolicyEngine() (*policy.Engine, error) {
	e, err := policy.NewEngine(policy.WithMetrics(provider.Metrics()))
	if err != nil {
		return nil, err
	}
	dir := orDefault(policyDir, cfg.PolicyDir)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return e, nil
	}
	loader := policyloader.NewLoader(dir)
	if err := loader.LoadAll(); err != nil {
		return nil, err
	}
	if err := loader.Install(e); err != nil {
		return nil, err
	}
	return e, nil
}

func runPolicy(cmd *cobra.Command, args []string) error {
	e, err := newPolicyEngine()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		if jsonOut {
			return printJSON(e.Policies())
		}
		for _, name := range e.Policies() {
			fmt.Println(name)
		}
		return nil
	}

	c, err := readClaim(args[0])
	if err != nil {
		return err
	}
	var results []*policy.Result
	if policyName != "" {
		res, err := e.Evaluate(cmd.Context(), c, policyName)
		if err != nil {
			return err
		}
		results = append(results, res)
	} else {
		results = e.EvaluateAll(cmd.Context(), c)
	}

	if jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			status := "PASS"
			if !res.Passed {
				status = "FAIL"
			}
			fmt.Printf("%s %s@%s\n", status, res.PolicyName, res.PolicyVersion)
			for _, v := range res.Violations {
				fmt.Printf("  %-7s %s: %s\n", v.Severity, v.RuleName, v.Message)
			}
		}
	}
	for _, res := range results {
		if !res.Passed {
			return errPolicyFailed
		}
	}
	return nil
}
