package main

import (
	"flag"
	"log"

	"script_ink/cmd/migration/versions"
	"script_ink/utils"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

type migrationEnv struct {
	DatabaseUri string `env:"DB_URI,required"`
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from.")
	target := flag.String("to", "", "Migrate up to this version instead of the latest.")
	rollback := flag.Bool("rollback", false, "Roll back the last applied migration.")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("error loading .env file '%v': %v", *envFile, err)
		}
	}

	var cfg migrationEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load environment variables: %v", err)
	}

	db, err := utils.OpenDb(cfg.DatabaseUri, &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("%v", err)
	}

	migration := versions.New(db)

	switch {
	case *rollback:
		err = migration.RollbackLast()
	case *target != "":
		err = migration.MigrateTo(*target)
	default:
		err = migration.Migrate()
	}
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("migration completed successfully")
}
