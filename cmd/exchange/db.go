package main

import (
	"database/sql"
	"fmt"

	configPkg "github.com/KeynihAV/tradecore/pkg/config"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func initDB(config *configPkg.Config) (*sql.DB, error) {
	dbName := config.DB.Database

	connString := fmt.Sprintf("user=%v password=%v host=%v port=%v sslmode=disable",
		config.DB.Username, config.DB.Password, config.DB.Host, config.DB.Port)

	DBMS, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}

	err = DBMS.Ping()
	if err != nil {
		return nil, err
	}

	rows, err := DBMS.Query(`SELECT 1 FROM pg_database WHERE datname = $1`, dbName)
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		_, err = DBMS.Exec(fmt.Sprintf(`CREATE DATABASE %v`, dbName))
		if err != nil {
			return nil, err
		}
	}
	rows.Close()

	err = DBMS.Close()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", fmt.Sprintf("%v dbname=%v", connString, dbName))
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	return db, nil
}
