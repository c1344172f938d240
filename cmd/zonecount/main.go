// Command zonecount counts taxi trips per pickup zone.
//
//	zonecount --zones taxi_zone_lookup.csv --top 20 -o out/ trips/
//
// The same binary serves tasks when deployed as an AWS Lambda function or a
// Knative service.
package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ease-lab/zonecount"
	"github.com/ease-lab/zonecount/pickup"
	"github.com/ease-lab/zonecount/report"
	"github.com/ease-lab/zonecount/sink/mysqlsink"
)

var (
	locationField = flag.String("location-field", "", "Record field holding the pickup location (default PULocationID)")
	schema        = flag.String("schema", "", "Declared field types, e.g. `PULocationID=INT32`")
	zonesPath     = flag.String("zones", "", "Zone lookup CSV, same as --side-input zones=`path`")
	mysqlDSN      = flag.String("mysql-dsn", "", "Import the results into the MySQL database at `dsn`")
	mysqlTable    = flag.String("mysql-table", "pickups_by_zone", "MySQL table to import into")
	mysqlReplace  = flag.Bool("mysql-replace", false, "Truncate the MySQL table before importing")
)

// setting returns the flag value if given, else the configured value.
func setting(flagValue, key string) string {
	if flagValue != "" {
		return flagValue
	}
	return viper.GetString(key)
}

func main() {
	flag.Parse()

	job := zonecount.NewJob(nil, nil)
	var options []zonecount.Option
	if *zonesPath != "" {
		options = append(options, zonecount.WithSideInput(pickup.ZonesSideInput, *zonesPath))
	}
	driver := zonecount.NewDriver(job, options...)

	cfg := pickup.Config{
		LocationField: setting(*locationField, "locationField"),
		Schema:        setting(*schema, "inputSchema"),
		CacheSize:     viper.GetInt("zonesCacheSize"),
	}
	if err := pickup.Configure(job, cfg); err != nil {
		log.Fatal(err)
	}

	if dsn := setting(*mysqlDSN, "mysqlDSN"); dsn != "" {
		sinkConfig := mysqlsink.Config{
			Table:   *mysqlTable,
			Replace: *mysqlReplace,
		}
		driver.OnResult(func(ctx context.Context, rows []report.Row) error {
			db, err := mysqlsink.Open(dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			return mysqlsink.Write(ctx, db, sinkConfig, rows)
		})
	}

	driver.Main(context.Background())
}
