package zonecount

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// config holds the settings of a driver and the jobs it runs.
type config struct {
	Inputs          []string
	SplitSize       int64
	MapBinSize      int64
	ReduceBinSize   int64
	MaxConcurrency  int
	WorkingLocation string
	Cleanup         bool
	SideInputs      map[string]string
	TopN            int
	Verbose         bool

	Backend            backend
	LambdaFunctionName string
	KnativeServiceURL  string
}

// backend selects where tasks are executed.
type backend int

const (
	localBackend backend = iota
	lambdaBackend
	knativeBackend
)

func (b backend) String() string {
	switch b {
	case lambdaBackend:
		return "lambda"
	case knativeBackend:
		return "knative"
	}
	return "local"
}

func newConfig() *config {
	loadConfig()
	return &config{
		Inputs:          []string{},
		SplitSize:       viper.GetInt64("splitSize"),
		MapBinSize:      viper.GetInt64("mapBinSize"),
		ReduceBinSize:   viper.GetInt64("reduceBinSize"),
		MaxConcurrency:  viper.GetInt("maxConcurrency"),
		WorkingLocation: viper.GetString("workingLocation"),
		Cleanup:         viper.GetBool("cleanup"),
		SideInputs:      copyStringMap(viper.GetStringMapString("sideInputs")),
		TopN:            viper.GetInt("top"),
		Verbose:         viper.GetBool("verbose"),

		LambdaFunctionName: viper.GetString("lambdaFunctionName"),
		KnativeServiceURL:  viper.GetString("knativeServiceURL"),
	}
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"lambdaFunctionName": "zonecount_function",
		"knativeServiceURL":  "",
		"cleanup":            true,
		"verbose":            false,
		"splitSize":          100 * 1024 * 1024, // Default input split size is 100Mb
		"mapBinSize":         512 * 1024 * 1024, // Default map bin size is 512Mb
		"reduceBinSize":      512 * 1024 * 1024, // Default reduce bin size is 512Mb
		"maxConcurrency":     500,               // Maximum number of concurrent executions
		"workingLocation":    ".",
		"sideInputs":         map[string]string{},
		"top":                0,
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"verbose":         "v",
		"workingLocation": "out",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}

func loadConfig() {
	viper.SetConfigName("zonecountrc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.zonecount")
	viper.AddConfigPath("/etc/zonecount")

	setupDefaults()

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warnf("Error reading config file: %s", err)
		}
	}

	viper.SetEnvPrefix("zonecount")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}
