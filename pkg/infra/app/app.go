// Package app 基于 cobra、viper 和 pflag 组装 docvector 的命令行入口。
//
// 配置优先级从高到低：命令行参数、环境变量（前缀为大写的应用名，
// 如 DOCVECTOR_POSTGRES_HOST）、配置文件、flag 默认值。
// 配置文件中的 ${VAR} 与 $VAR 会在加载时替换为环境变量的值。
//
//	app.NewApp(
//	    app.WithName("docvector"),
//	    app.WithDescription("Document vectorization service"),
//	    app.WithOptions(opts),
//	    app.WithRunFunc(run),
//	).Run()
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RunFunc 在配置加载、补全并校验通过后执行。
type RunFunc func() error

// Option 配置 App。
type Option func(*App)

// App 是一个带分组 flag 的单命令应用。
type App struct {
	name        string
	description string
	options     CliOptions
	runFunc     RunFunc
	silence     bool

	cmd   *cobra.Command
	viper *viper.Viper
}

// WithName 设置应用名，同时决定环境变量前缀和默认配置文件名。
func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithDescription 设置 --help 中的长描述。
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions 设置命令的配置项。
func WithOptions(opts CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc 设置运行函数。
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithSilence 关闭 cobra 的错误输出，测试中使用。
func WithSilence() Option {
	return func(a *App) { a.silence = true }
}

// NewApp 创建应用。
func NewApp(opts ...Option) *App {
	a := &App{
		name:  filepath.Base(os.Args[0]),
		viper: viper.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cmd = a.buildCommand()
	return a
}

func (a *App) buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         firstLine(a.description),
		Long:          a.description,
		RunE:          a.runCommand,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: a.silence,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	global := cmd.PersistentFlags()
	global.StringP("config", "c", "", "Path to config file, defaults to "+a.name+".yaml in ., ./configs, ~/."+a.name+" or /etc/"+a.name)
	global.BoolP("help", "h", false, "Help for "+a.name)
	version.AddFlags(global)

	if a.options == nil {
		return cmd
	}
	fss := a.options.Flags()
	for _, name := range fss.Order {
		cmd.Flags().AddFlagSet(fss.FlagSets[name])
	}
	cmd.SetUsageFunc(func(c *cobra.Command) error {
		printSections(c.OutOrStderr(), c.UseLine(), fss)
		return nil
	})
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		_, _ = fmt.Fprintf(c.OutOrStdout(), "%s\n\n", c.Long)
		printSections(c.OutOrStdout(), c.UseLine(), fss)
	})
	return cmd
}

// printSections 按注册顺序分组打印 flag。
func printSections(w io.Writer, useLine string, fss NamedFlagSets) {
	_, _ = fmt.Fprintf(w, "Usage:\n  %s\n", useLine)
	for _, name := range fss.Order {
		fs := fss.FlagSets[name]
		if !fs.HasFlags() {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s flags:\n\n%s", strings.ToUpper(name[:1])+name[1:], fs.FlagUsages())
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	version.PrintAndExitIfRequested()

	if err := a.loadConfig(cmd); err != nil {
		return err
	}
	if a.options != nil {
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}
	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// loadConfig 把配置文件、环境变量和命令行参数合并到 options。
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.viper
	if file, _ := cmd.Flags().GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", filepath.Join(os.Getenv("HOME"), "."+a.name), "/etc/" + a.name} {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	expandEnvVars(v)

	v.SetEnvPrefix(EnvPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.options == nil {
		return nil
	}
	// 绑定后每个 flag 名都成为 viper 键，AutomaticEnv 才能命中
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// EnvPrefix 返回应用的环境变量前缀，"docvector-test" 对应 "DOCVECTOR_TEST"。
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars 替换字符串配置值中的环境变量引用，未设置的变量保留原文。
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		raw, ok := v.Get(key).(string)
		if !ok || !strings.Contains(raw, "$") {
			continue
		}
		expanded := envRef.ReplaceAllStringFunc(raw, func(ref string) string {
			m := envRef.FindStringSubmatch(ref)
			name := m[1]
			if name == "" {
				name = m[2]
			}
			if val, ok := os.LookupEnv(name); ok && val != "" {
				return val
			}
			return ref
		})
		if expanded != raw {
			v.Set(key, expanded)
		}
	}
}

// Run 执行命令，出错时以状态码 1 退出。
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command 返回底层 cobra 命令。
func (a *App) Command() *cobra.Command {
	return a.cmd
}
