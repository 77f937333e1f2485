package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const EnvPrefix = "FLOWLOAD"

func AddApiConnectionCommandlineArgs(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("url", DefaultUrl, "base url of the flow-db service")
	rootCmd.PersistentFlags().String("apiPrefix", DefaultApiPrefix, "path prefix of the flow-db api routes")
	rootCmd.PersistentFlags().Duration("requestTimeout", DefaultRequestTimeout, "deadline for a single request to the service")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("apiPrefix", rootCmd.PersistentFlags().Lookup("apiPrefix"))
	_ = viper.BindPFlag("requestTimeout", rootCmd.PersistentFlags().Lookup("requestTimeout"))
}

// LoadCommandlineArgsFromConfigFile merges, in increasing order of precedence, flowload-defaults.yaml next to the
// executable, the given config file (or ~/.flowload.yaml) and FLOWLOAD_ prefixed environment variables.
func LoadCommandlineArgsFromConfigFile(cfgFile string) error {
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error finding executable path: %s", err)
	}
	viper.SetConfigFile(filepath.Join(filepath.Dir(exePath), "flowload-defaults.yaml"))
	if err := viper.ReadInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError, *os.PathError:
			// No default config is fine
		default:
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error reading config file %s: %s", viper.ConfigFileUsed(), err)
		}
	}

	optional := cfgFile == ""
	if optional {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error getting user home directory: %s", err)
		}
		// Set as a file rather than a search path: viper keeps the defaults file otherwise.
		cfgFile = filepath.Join(home, ".flowload.yaml")
	}
	viper.SetConfigFile(cfgFile)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError, *os.PathError:
			if optional {
				// Users don't have to create ~/.flowload.yaml
				return nil
			}
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] config file %s not found: %s", cfgFile, err)
		default:
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error reading config file %s: %s", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

func ExtractCommandlineApiConnectionDetails() *ApiConnectionDetails {
	apiConnectionDetails := &ApiConnectionDetails{}
	_ = viper.Unmarshal(apiConnectionDetails)
	return apiConnectionDetails
}
