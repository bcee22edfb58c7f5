package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// parseFlags overlays the short command-line flags:
//
//	-p int      HTTP port
//	-d string   database DSN
//	-D string   database driver (sqlite|pgx)
//	-s string   JWT secret
//	-k string   cipher passphrase
//	-u string   public base URL used in emailed links
//	-r string   redis address
//	-l string   log level
func parseFlags(cfg *Config) error {
	args := filterArgs(os.Args[1:], []string{"-p", "-d", "-D", "-s", "-k", "-u", "-r", "-l"})

	fs := flag.NewFlagSet("accountkeeper", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "p", cfg.Port, "HTTP port")
	fs.StringVar(&cfg.DBDSN, "d", cfg.DBDSN, "database DSN")
	fs.StringVar(&cfg.DBDriver, "D", cfg.DBDriver, "database driver (sqlite|pgx)")
	fs.StringVar(&cfg.JWTSecret, "s", cfg.JWTSecret, "JWT secret")
	fs.StringVar(&cfg.CipherKey, "k", cfg.CipherKey, "cipher passphrase")
	fs.StringVar(&cfg.PublicURL, "u", cfg.PublicURL, "public base URL")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: parsing flags: %w", err)
	}
	return nil
}

// configFileFlag extracts the -c / -config value from args.
func configFileFlag(args []string) string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(filterArgs(args, []string{"-c", "-config", "--config"}))

	return path
}

// filterArgs keeps only the allowed flags and their values, so each parser
// ignores flags that belong to another source.
func filterArgs(args []string, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		set[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := set[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := set[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}
	return filtered
}
