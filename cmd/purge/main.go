// Command purge runs the detection retention pass on demand, or wipes the
// engine tables of a test installation with -reset
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/Keeydi/LedgerMonitor-sub000/config"
	"github.com/Keeydi/LedgerMonitor-sub000/database"
	"github.com/Keeydi/LedgerMonitor-sub000/logging"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/Keeydi/LedgerMonitor-sub000/retention"
	"github.com/Keeydi/LedgerMonitor-sub000/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	reset := flag.Bool("reset", false, "delete all violations, detections, incidents, notification logs and alerts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("❌ Invalid configuration: %v", err)
	}
	logging.Setup(cfg.Env, cfg.Log.Level)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logrus.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if *reset {
		resetTables(db)
		return
	}

	st := store.New(db)
	cleaner := retention.NewCleaner(st.Detections, retention.FileStore{Root: cfg.Server.UploadDir}, cfg.Retention.Window, cfg.Retention.BatchSize)

	var total retention.Report
	for {
		report, err := cleaner.Purge(context.Background())
		if err != nil {
			logrus.Fatalf("❌ Purge failed: %v", err)
		}
		total.Scanned += report.Scanned
		total.Deleted += report.Deleted
		total.Kept += report.Kept
		total.Failed += report.Failed
		if report.Complete {
			break
		}
	}
	fmt.Printf("✅ Purge finished: %d deleted, %d kept, %d failed\n", total.Deleted, total.Kept, total.Failed)
}

func resetTables(db *gorm.DB) {
	fmt.Println("Start reset...")
	for _, m := range []struct {
		name  string
		model interface{}
	}{
		{"notification logs", &models.NotificationLog{}},
		{"authority alerts", &models.AuthorityAlert{}},
		{"incidents", &models.Incident{}},
		{"violations", &models.Violation{}},
		{"detections", &models.Detection{}},
	} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m.model).Error; err != nil {
			logrus.Fatalf("Failed to delete %s: %v", m.name, err)
		}
		fmt.Printf("✅ Deleted all %s\n", m.name)
	}
	fmt.Println("Reset finished successfully")
}
