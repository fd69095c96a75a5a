package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/libraria/services/library/config"
	"example.com/libraria/services/library/models"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "library-service",
	Short: "Book library service using event sourcing",
	Long:  `A book lending service built on event sourcing and CQRS: catalog, reservations, and user wallets`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

func initConfig() {
	var err error

	if cfgFile != "" {
		// Use config file from the flag
		config.SetConfigFile(cfgFile)
	}

	cfg, err = config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// openDatabase connects to Postgres. TranslateError maps driver unique
// violations onto gorm.ErrDuplicatedKey, which the event store's version
// gate depends on.
func openDatabase() (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DBSource), &gorm.Config{TranslateError: true})
}

// migrateTables creates or updates the schema.
func migrateTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Event{},
		&models.AggregateKey{},
		&models.BookProjection{},
		&models.ReservationProjection{},
		&models.WalletProjection{},
		&models.ReservationSaga{},
	)
}
