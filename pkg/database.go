package sigproc

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	_ "modernc.org/sqlite"
)

// ConnectToDatabase opens the conditions database. For the sqlite driver
// dbname is the database file and the other parameters are ignored.
func ConnectToDatabase(driver string, user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	switch driver {
	case "mysql":
		port := "3306"
		dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
		return sqlx.Connect("mysql", dbURI)
	case "sqlite":
		return sqlx.Connect("sqlite", dbname)
	}
	return nil, &ConfigError{Expr: driver, Err: fmt.Errorf("unsupported database driver")}
}

// ElectronicsConditions are the electronics settings valid for a run
// range, stored as unit expressions.
type ElectronicsConditions struct {
	Gain     string `db:"Gain"`
	Shaping  string `db:"Shaping"`
	ElecType string `db:"ElecType"`
}

type zeroWireEntry struct {
	PlaneID  int     `db:"PlaneID"`
	Location float64 `db:"Location"`
}

func GetElectronicsFromDB(db *sqlx.DB, detector string, runNumber int) (ElectronicsConditions, error) {
	query := db.Rebind("SELECT Gain, Shaping, ElecType FROM ElectronicsConditions WHERE Detector = ? and MinRun <= ? and MaxRun >= ?")

	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Reading electronics conditions for %s run %d from database", detector, runNumber)
		logger.Info(message, "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}

	var result []ElectronicsConditions
	if err := db.Select(&result, query, detector, runNumber, runNumber); err != nil {
		return ElectronicsConditions{}, fmt.Errorf("error querying database: %w", err)
	}
	switch len(result) {
	case 0:
		return ElectronicsConditions{}, fmt.Errorf("no electronics conditions for %s run %d", detector, runNumber)
	case 1:
		return result[0], nil
	}
	return ElectronicsConditions{}, fmt.Errorf("%d overlapping electronics conditions for %s run %d", len(result), detector, runNumber)
}

// GetZeroWireLocationsFromDB returns the wire 0 position of every plane,
// indexed by plane ID. Planes without an entry are at 0.
func GetZeroWireLocationsFromDB(db *sqlx.DB, detector string, runNumber int) ([]float64, error) {
	query := db.Rebind("SELECT PlaneID, Location FROM ZeroWireLocations WHERE Detector = ? and MinRun <= ? and MaxRun >= ? ORDER BY PlaneID")

	if configuration.Verbosity > 0 {
		logger.Info("Zero wire locations read from DB", "database")
	}
	if configuration.Verbosity > 2 {
		message := fmt.Sprintf("Query: %s", query)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query, detector, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	locations := make([]float64, 0, 3)
	for rows.Next() {
		result := zeroWireEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		if result.PlaneID < 0 {
			return nil, fmt.Errorf("negative plane id %d in zero wire locations", result.PlaneID)
		}
		for len(locations) <= result.PlaneID {
			locations = append(locations, 0)
		}
		locations[result.PlaneID] = result.Location
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading DB rows: %w", err)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("no zero wire locations for %s run %d", detector, runNumber)
	}
	return locations, nil
}

// LoadConditions overrides the electronics and zero wire settings of config
// with the values stored for its detector and run.
func LoadConditions(dbConn *sqlx.DB, config Configuration) (Configuration, error) {
	elec, err := GetElectronicsFromDB(dbConn, config.Detector, config.RunNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting electronics conditions from database: %w", err)
		logger.Error(errMessage.Error())
		return config, errMessage
	}
	elecType, err := ParseElecType(elec.ElecType)
	if err != nil {
		return config, err
	}
	config.Gain = elec.Gain
	config.Shaping = elec.Shaping
	config.ElecType = elecType

	locations, err := GetZeroWireLocationsFromDB(dbConn, config.Detector, config.RunNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting zero wire locations from database: %w", err)
		logger.Error(errMessage.Error())
		return config, errMessage
	}
	config.ZeroWireLocs = locations
	return config, config.Validate()
}
