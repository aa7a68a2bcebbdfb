package cmd

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment agentkitd needs to run",
	Long:  "Verify git is installed, the workspace root is a git repository, the external coding CLI is reachable, and the config loads cleanly.",
	RunE:  runDoctor,
}

func runDoctor(_ *cobra.Command, _ []string) error {
	fmt.Println("Checking dependencies...")
	fmt.Println()

	gitOK := checkCommand("git", []string{"--version"})
	printCheck("git", gitOK, true)

	cfg, cfgErr := loadConfig()
	if cfgErr != nil {
		printCheckDetail("config", false, true, cfgErr.Error())
	} else {
		printCheck("config", true, true)
	}

	requiredOK := gitOK && cfgErr == nil
	if cfgErr == nil {
		repoOK := checkCommand("git", []string{"-C", cfg.WorkspaceRoot, "rev-parse", "--is-inside-work-tree"})
		printCheckDetail("workspace is a git repository", repoOK, true, cfg.WorkspaceRoot)
		requiredOK = requiredOK && repoOK

		cliOK := checkCommand(cfg.ExternalCLI.Executable, []string{"--version"})
		printCheckDetail(cfg.ExternalCLI.Executable, cliOK, false, "external-cli runner")
	}

	fmt.Println()
	if !requiredOK {
		return fmt.Errorf("dependency check failed")
	}
	fmt.Println("All required dependencies available")
	return nil
}

func printCheck(name string, ok, required bool) {
	printCheckDetail(name, ok, required, "")
}

func printCheckDetail(name string, ok, required bool, detail string) {
	icon := "✓"
	suffix := ""
	if !ok {
		if required {
			icon = "✗"
		} else {
			icon = "○"
			suffix = " (optional)"
		}
	}
	if detail != "" {
		fmt.Printf("  %s %s%s: %s\n", icon, name, suffix, detail)
		return
	}
	fmt.Printf("  %s %s%s\n", icon, name, suffix)
}

func checkCommand(name string, args []string) bool {
	cmd := exec.Command(name, args...)
	return cmd.Run() == nil
}
