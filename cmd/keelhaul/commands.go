package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keelhaul-sec/keelhaul/internal/arch"
	"github.com/keelhaul-sec/keelhaul/internal/console"
	"github.com/keelhaul-sec/keelhaul/internal/discovery"
	"github.com/keelhaul-sec/keelhaul/internal/logging"
	"github.com/keelhaul-sec/keelhaul/internal/payload"
	"github.com/keelhaul-sec/keelhaul/internal/profile"
	"github.com/keelhaul-sec/keelhaul/internal/register"
	"github.com/keelhaul-sec/keelhaul/internal/shell"
	"github.com/keelhaul-sec/keelhaul/internal/stratagem"
	"github.com/keelhaul-sec/keelhaul/internal/ui"
	"github.com/keelhaul-sec/keelhaul/internal/version"
)

// Session flags
var (
	deviceURI   string
	profilePath string
	archName    string
	promptStr   string
	readTimeout time.Duration
	allowDeploy bool
	allowReboot bool
	assumeYes   bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceURI, "device", "d", "", "Console transport URI (tcp://host:port or ws://host:port/path)")
	rootCmd.PersistentFlags().StringVarP(&profilePath, "profile", "p", "", "Device profile file to load and update")
	rootCmd.PersistentFlags().StringVar(&archName, "arch", "", "Target architecture (default: from profile, else arm)")
	rootCmd.PersistentFlags().StringVar(&promptStr, "prompt", "", "Shell prompt (default: from profile, else auto-detected)")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "timeout", 0, "Console idle read timeout (default 150ms)")
	rootCmd.PersistentFlags().BoolVar(&allowDeploy, "allow-deploy", false, "Permit writing and executing payloads in target RAM")
	rootCmd.PersistentFlags().BoolVar(&allowReboot, "allow-reboot", false, "Permit resetting (or deliberately crashing) the target")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Skip interactive confirmation prompts")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(setenvCmd)
	rootCmd.AddCommand(readMemCmd)
	rootCmd.AddCommand(writeMemCmd)
	rootCmd.AddCommand(readRegCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(monitorCmd)
}

// session bundles everything an open target conversation needs.
type session struct {
	console *console.Console
	disp    *shell.Dispatcher
	prof    *profile.Profile
}

// openSession connects to the target, brings the shell to a quiescent
// prompt, and builds the dispatcher. Flags override profile values, which
// override defaults.
func openSession(ctx context.Context) (*session, error) {
	if deviceURI == "" {
		return nil, fmt.Errorf("no console given; use --device or 'keelhaul discover'")
	}

	prof, err := loadProfile()
	if err != nil {
		return nil, err
	}

	name := archName
	if name == "" {
		name = prof.Arch
	}
	if name == "" {
		name = "arm"
	}
	a, err := arch.Get(name)
	if err != nil {
		return nil, err
	}

	cfg := console.DefaultConfig()
	if readTimeout > 0 {
		cfg.ReadTimeout = readTimeout
	}
	cfg.Prompt = promptStr
	if cfg.Prompt == "" {
		cfg.Prompt = prof.Prompt
	}

	if (allowDeploy || allowReboot) && !assumeYes {
		if allowDeploy && !ui.DeployConfirmation() {
			return nil, fmt.Errorf("payload deployment not confirmed")
		}
		if allowReboot && !ui.RebootConfirmation() {
			return nil, fmt.Errorf("target reset not confirmed")
		}
	}

	c, err := console.Open(deviceURI, cfg, logging.GetLogger())
	if err != nil {
		return nil, err
	}

	// Land on a quiescent prompt before anything else; this also runs
	// prompt discovery when no prompt is known yet.
	if _, err := c.Interrupt(ctx, shell.DefaultInterruptTimeout); err != nil {
		c.Close()
		return nil, fmt.Errorf("could not reach a shell prompt: %w", err)
	}

	prof.Arch = a.Name()
	prof.Prompt = c.Prompt()
	prof.Device = deviceURI

	d := shell.New(c, a, prof, shell.Options{
		AllowDeploy: allowDeploy,
		AllowReboot: allowReboot,
		Logger:      logging.GetLogger(),
	})
	return &session{console: c, disp: d, prof: prof}, nil
}

func (s *session) close() {
	saveProfile(s.prof)
	_ = s.console.Close()
}

func loadProfile() (*profile.Profile, error) {
	if profilePath == "" {
		return profile.New(""), nil
	}
	if _, err := os.Stat(profilePath); os.IsNotExist(err) {
		return profile.New(""), nil
	}
	return profile.Load(profilePath)
}

func saveProfile(prof *profile.Profile) {
	if profilePath == "" {
		return
	}
	prof.ToolVersion = version.Full()
	if err := prof.Save(profilePath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save profile: %v\n", err)
	}
}

func parseAddr(s string) (uint64, error) {
	value, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		// Bootloader habits die hard: accept bare hex too.
		if v, herr := strconv.ParseUint(s, 16, 64); herr == nil {
			return v, nil
		}
		return 0, fmt.Errorf("bad address or count %q", s)
	}
	return value, nil
}

// discoverCmd scans the LAN for serial console bridges.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover serial console bridges on the network",
	Long: `Scan for serial console bridges using mDNS/DNS-SD discovery.

ser2net and comparable serial-over-TCP daemons advertise themselves as
"_telnet._tcp" services; each hit converts directly into a --device URI.`,
	Example: `  # Scan for 10 seconds (default)
  keelhaul discover

  # Longer scan for sleepy networks
  keelhaul discover --scan-timeout 30s`,
	RunE: runDiscover,
}

var scanTimeout time.Duration

func init() {
	discoverCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "Discovery timeout")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for console bridges (timeout: %s)...\n\n", scanTimeout)

	bridges, err := discovery.Scan(cmd.Context(), scanTimeout)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(bridges) == 0 {
		fmt.Println("No console bridges found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the bridge advertises itself over mDNS (_telnet._tcp)")
		fmt.Println("  - Check that UDP port 5353 is not filtered")
		fmt.Println("  - Use --device tcp://host:port directly if discovery fails")
		return nil
	}

	fmt.Printf("Found %d bridge(s):\n\n", len(bridges))
	for i, bridge := range bridges {
		fmt.Printf("%d. %s\n", i+1, bridge.Name)
		fmt.Printf("   Host:   %s\n", bridge.Hostname)
		fmt.Printf("   Device: %s\n", bridge.DeviceURI())
		if len(bridge.Metadata) > 0 {
			fmt.Printf("   TXT:    %v\n", bridge.Metadata)
		}
		fmt.Println()
	}

	fmt.Println("Use 'keelhaul inspect --device <uri>' to inspect a target")
	return nil
}

// inspectCmd builds or refreshes a device profile.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect the target and build its profile",
	Long: `Connect to the target, reach a shell prompt, and enumerate what the
bootloader exposes: version banner, command table, and environment.

With --profile, everything learned is written to the profile file so
later invocations can skip re-inspection.`,
	Example: `  keelhaul inspect --device tcp://192.168.0.10:4444 --profile router.yaml`,
	RunE:    runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	p := ui.NewPrinter(nil)
	p.PrintHeader("target inspection", map[string]string{
		"Device": deviceURI,
		"Arch":   s.disp.Arch().Name(),
	})

	banner, err := s.disp.Version(ctx)
	if err != nil {
		return err
	}
	commands, err := s.disp.Commands(ctx, true)
	if err != nil {
		return err
	}
	env, err := s.disp.Environment(ctx, true)
	if err != nil {
		return err
	}

	p.PrintDetails(map[string]string{
		"Version":     banner,
		"Prompt":      s.console.Prompt(),
		"Commands":    fmt.Sprintf("%d", len(commands)),
		"Environment": fmt.Sprintf("%d variables", len(env)),
	})
	p.Newline()
	p.PrintSuccess("Inspection complete", nil)
	return nil
}

// envCmd prints the target environment.
var envCmd = &cobra.Command{
	Use:   "env [name]",
	Short: "Print the target's environment (or one variable)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		if len(args) == 1 {
			value, err := s.disp.EnvVar(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s=%s\n", args[0], value)
			return nil
		}

		env, err := s.disp.Environment(ctx, true)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(env))
		for name := range env {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s=%s\n", name, env[name])
		}
		return nil
	},
}

// setenvCmd sets or deletes an environment variable.
var setenvCmd = &cobra.Command{
	Use:   "setenv <name> [value]",
	Short: "Set (or with no value, delete) a target environment variable",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		value := ""
		if len(args) == 2 {
			value = args[1]
		}
		return s.disp.SetEnvVar(ctx, args[0], value)
	},
}

// Memory command flags
var (
	memOutFile    string
	memInFile     string
	stratagemFile string
)

var readMemCmd = &cobra.Command{
	Use:   "read-mem <addr> <count>",
	Short: "Read target memory",
	Long: `Read count bytes of target memory at addr via the md command.

Output is a hex dump on stdout, or raw bytes with --out.`,
	Example: `  keelhaul read-mem -d tcp://10.0.0.5:4444 0x82000000 256
  keelhaul read-mem -d tcp://10.0.0.5:4444 0x82000000 0x10000 --out dump.bin`,
	Args: cobra.ExactArgs(2),
	RunE: runReadMem,
}

func init() {
	readMemCmd.Flags().StringVar(&memOutFile, "out", "", "Write raw bytes to this file instead of stdout")
}

func runReadMem(cmd *cobra.Command, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	count, err := parseAddr(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	data, err := s.disp.ReadMemory(ctx, addr, count)
	if err != nil {
		return err
	}

	if memOutFile != "" {
		if err := os.WriteFile(memOutFile, data, 0600); err != nil {
			return err
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(data), memOutFile)
		return nil
	}

	fmt.Print(hex.Dump(data))
	return nil
}

var writeMemCmd = &cobra.Command{
	Use:   "write-mem <addr> [hexdata]",
	Short: "Write target memory",
	Long: `Write bytes to target memory at addr.

The data comes from the hexdata argument ("deadbeef"), from --in <file>,
or from a saved stratagem plan with --stratagem, in which case the write
is carried out purely through crc32 command side effects.`,
	Example: `  keelhaul write-mem -d tcp://10.0.0.5:4444 0x82000000 deadbeef
  keelhaul write-mem -d tcp://10.0.0.5:4444 0x82000000 --in payload.bin
  keelhaul write-mem -d tcp://10.0.0.5:4444 0x82000000 --stratagem plan.json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWriteMem,
}

func init() {
	writeMemCmd.Flags().StringVar(&memInFile, "in", "", "Read the data to write from this file")
	writeMemCmd.Flags().StringVar(&stratagemFile, "stratagem", "", "Replay a saved stratagem plan against addr")
}

func runWriteMem(cmd *cobra.Command, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}

	var data []byte
	var plan *stratagem.Stratagem
	switch {
	case stratagemFile != "":
		plan, err = stratagem.LoadFile(stratagemFile, shell.StratagemSpecs)
		if err != nil {
			return err
		}
	case memInFile != "":
		data, err = os.ReadFile(memInFile)
		if err != nil {
			return err
		}
	case len(args) == 2:
		data, err = hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
		if err != nil {
			return fmt.Errorf("bad hex data: %w", err)
		}
	default:
		return fmt.Errorf("nothing to write; give hexdata, --in, or --stratagem")
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if plan != nil {
		if err := s.disp.WriteMemoryCRC32(ctx, addr, plan); err != nil {
			return err
		}
		fmt.Printf("Replayed %d stratagem records (%d operations)\n",
			plan.Len(), plan.TotalOperations())
		return nil
	}

	if err := s.disp.WriteMemory(ctx, addr, data); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes at %#x\n", len(data), addr)
	return nil
}

// Register command flags
var (
	crossValidate  bool
	crashAddress   uint64
	regPayloadFile string
)

var readRegCmd = &cobra.Command{
	Use:   "read-reg <register>",
	Short: "Read a CPU register value",
	Long: `Read a CPU register from the running bootloader.

The bootloader has no register-dump command, so this works either by
deliberately crashing the target and parsing the abort handler's register
dump (requires --allow-reboot) or by executing a deployed return-register
payload (requires --allow-deploy). Strategies are tried least intrusive
first; --cross-validate runs them all and compares answers.`,
	Example: `  keelhaul read-reg -d tcp://10.0.0.5:4444 --allow-reboot sp
  keelhaul read-reg -d tcp://10.0.0.5:4444 --allow-reboot --cross-validate pc`,
	Args: cobra.ExactArgs(1),
	RunE: runReadReg,
}

func init() {
	readRegCmd.Flags().BoolVar(&crossValidate, "cross-validate", false, "Read with every available strategy and compare")
	readRegCmd.Flags().Uint64Var(&crashAddress, "crash-address", 0, "Unmapped address crash strategies dereference")
	readRegCmd.Flags().StringVar(&regPayloadFile, "payload", "", "return-register payload binary, enables the go strategy")
	readRegCmd.Flags().Uint64Var(&payloadBase, "base", 0, "RAM address to stage payloads at (default: from profile)")
}

func runReadReg(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	readers := register.NewDefaultCrashReaders(s.disp, crashAddress)
	if regPayloadFile != "" {
		blob, err := os.ReadFile(regPayloadFile)
		if err != nil {
			return err
		}
		runner := payload.NewRegistry(s.disp, payloadBase, logging.GetLogger())
		if err := runner.Register(register.ReturnRegisterPayload, blob); err != nil {
			return err
		}
		readers = append(readers, register.NewGoReader(s.disp, runner))
	}
	set := register.NewSet(s.disp, logging.GetLogger(), readers...)

	if crossValidate {
		results, err := set.CrossValidate(ctx, args[0])
		if err != nil {
			return err
		}
		for _, res := range results {
			switch {
			case !res.Available:
				fmt.Printf("%-20s unavailable\n", res.Reader)
			case res.Err != nil:
				fmt.Printf("%-20s error: %v\n", res.Reader, res.Err)
			default:
				note := ""
				if res.GroundTruth {
					note = "  (ground truth)"
				} else if !res.Match {
					note = "  (MISMATCH)"
				}
				fmt.Printf("%-20s %s = %#x%s\n", res.Reader, args[0], res.Value, note)
			}
		}
		if !register.Consistent(results) {
			return fmt.Errorf("strategies disagree or none succeeded; do not trust a lone value")
		}
		return nil
	}

	value, err := set.Read(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s = %#x\n", args[0], value)
	return nil
}

// Payload command flags
var (
	payloadBase uint64
	forceDeploy bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy <file>",
	Short: "Stage a payload binary in target RAM",
	Long: `Write a raw machine-code payload into target RAM (requires
--allow-deploy). The payload is staged at --base and can then be run
with 'keelhaul execute'.`,
	Example: `  keelhaul deploy -d tcp://10.0.0.5:4444 --allow-deploy --base 0x84000000 blink.bin`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDeploy,
}

func init() {
	deployCmd.Flags().Uint64Var(&payloadBase, "base", 0, "RAM address to stage payloads at (default: from profile)")
	deployCmd.Flags().BoolVar(&forceDeploy, "force", false, "Rewrite even if already resident")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	reg := payload.NewRegistry(s.disp, payloadBase, logging.GetLogger())
	if err := reg.Register(args[0], data); err != nil {
		return err
	}
	addr, err := reg.Deploy(ctx, args[0], forceDeploy)
	if err != nil {
		return err
	}

	fmt.Printf("Deployed %d bytes at %#x\n", len(data), addr)
	return nil
}

var executeCmd = &cobra.Command{
	Use:   "execute <addr> [arg...]",
	Short: "Execute code at a target address",
	Long: `Execute already-resident code at addr via the go command (requires
--allow-deploy) and print its return code. Arguments are passed through
to the payload.`,
	Example: `  keelhaul execute -d tcp://10.0.0.5:4444 --allow-deploy 0x84000000 0x61`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	var payloadArgs []uint64
	for _, arg := range args[1:] {
		v, err := parseAddr(arg)
		if err != nil {
			return err
		}
		payloadArgs = append(payloadArgs, v)
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	reg := payload.NewRegistry(s.disp, payloadBase, logging.GetLogger())
	rc, out, err := reg.RunAt(ctx, addr, payloadArgs...)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Print(out)
		if !strings.HasSuffix(out, "\n") {
			fmt.Println()
		}
	}
	fmt.Printf("rc = %#x\n", rc)
	return nil
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reset the target",
	Long: `Send the reset command to the target (requires --allow-reboot).

The session ends here; the target does not return from reset.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.disp.Reboot(ctx); err != nil {
			return err
		}
		fmt.Println("Target reset.")
		return nil
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch console traffic live",
	Long: `Attach to the console and display everything the target prints in a
scrollable viewer. Nothing is sent to the target; this is a passive tap,
useful for watching boot output or another tool's session.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if deviceURI == "" {
		return fmt.Errorf("no console given; use --device or 'keelhaul discover'")
	}

	cfg := console.DefaultConfig()
	if readTimeout > 0 {
		cfg.ReadTimeout = readTimeout
	}
	c, err := console.Open(deviceURI, cfg, logging.GetLogger())
	if err != nil {
		return err
	}
	defer c.Close()

	mon := console.NewChannelMonitor(0)
	c.AttachMonitor(mon)

	// Keep draining the transport so the monitor sees traffic; the TUI
	// owns the terminal until the user quits.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			if _, err := c.ReadAll(ctx); err != nil {
				return
			}
		}
	}()

	return ui.RunMonitor(deviceURI, mon.Events())
}
