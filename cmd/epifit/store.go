package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/epifit-xyz/go-epifit/series"
)

func store(args []string) error {
	fs := flag.NewFlagSet("store", flag.ExitOnError)
	db := fs.String("db", "epifit.db", "SQLite database file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: epifit store [-db file.db] <action> [options]

Manage observed case series in a SQLite database.

Actions:
  put       Load a series from CSV and store it
  list      List stored series
  get ID    Print a stored series
  delete ID Remove a stored series
  export ID Write a stored series as CSV to stdout

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  epifit store -db cases.db put -csv guangdong.csv -name Guangdong -population 104300000
  epifit store -db cases.db put -jhu confirmed_global.csv -region Hubei -population 59170000
  epifit store -db cases.db list
  epifit store -db cases.db export 6e1f... > guangdong.csv
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("store action required (put, list, get, delete, export)")
	}
	action := fs.Arg(0)
	rest := fs.Args()[1:]

	st, err := series.NewSQLiteStore(*db)
	if err != nil {
		return err
	}
	defer st.Close()

	switch action {
	case "put":
		return storePut(st, rest)
	case "list":
		return storeList(st)
	case "get":
		if len(rest) < 1 {
			return fmt.Errorf("usage: epifit store get <id>")
		}
		return storeGet(st, rest[0])
	case "delete":
		if len(rest) < 1 {
			return fmt.Errorf("usage: epifit store delete <id>")
		}
		if err := st.Delete(rest[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", rest[0])
		return nil
	case "export":
		if len(rest) < 1 {
			return fmt.Errorf("usage: epifit store export <id>")
		}
		return storeExport(st, rest[0])
	}
	return fmt.Errorf("unknown store action %q (available: put, list, get, delete, export)", action)
}

func storePut(st *series.SQLiteStore, args []string) error {
	fs := flag.NewFlagSet("store put", flag.ExitOnError)
	csvPath := fs.String("csv", "", "Two-column CSV case series")
	jhuPath := fs.String("jhu", "", "JHU CSSE wide-layout CSV")
	region := fs.String("region", "", "Region row to select from the JHU file")
	name := fs.String("name", "", "Series name (default: region or source filename)")
	population := fs.Float64("population", 0, "Region population")

	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := loadSeries(*csvPath, *jhuPath, *region)
	if err != nil {
		return err
	}

	if *name != "" {
		s.Name = *name
	}
	if s.Name == "" {
		base := filepath.Base(*csvPath)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if *region != "" {
		s.Region = *region
	}
	if *population > 0 {
		s.Population = *population
	}

	id, err := st.Put(s)
	if err != nil {
		return err
	}
	fmt.Printf("stored %q (%d points) as %s\n", s.Name, s.Len(), id)
	return nil
}

func storeList(st *series.SQLiteStore) error {
	all, err := st.List()
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("no series stored")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-16s  %6s  %12s\n", "ID", "NAME", "REGION", "POINTS", "POPULATION")
	for _, s := range all {
		popCell := "-"
		if s.Population > 0 {
			popCell = fmt.Sprintf("%g", s.Population)
		}
		fmt.Printf("%-36s  %-20s  %-16s  %6d  %12s\n", s.ID, s.Name, s.Region, s.Len(), popCell)
	}
	return nil
}

func storeGet(st *series.SQLiteStore, id string) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}

	fmt.Printf("ID:         %s\n", s.ID)
	fmt.Printf("Name:       %s\n", s.Name)
	if s.Region != "" {
		fmt.Printf("Region:     %s\n", s.Region)
	}
	if s.Population > 0 {
		fmt.Printf("Population: %g\n", s.Population)
	}
	fmt.Printf("Points:     %d\n\n", s.Len())

	fmt.Printf("  %8s  %12s\n", "day", "cases")
	for i := range s.Times {
		fmt.Printf("  %8g  %12g\n", s.Times[i], s.Counts[i])
	}
	return nil
}

func storeExport(st *series.SQLiteStore, id string) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}

	fmt.Println("day,cases")
	for i := range s.Times {
		fmt.Printf("%g,%g\n", s.Times[i], s.Counts[i])
	}
	return nil
}
