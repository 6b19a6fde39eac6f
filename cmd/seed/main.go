// Command seed creates the default authority accounts and a few registered
// vehicles for local testing
package main

import (
	"fmt"
	"os"

	"github.com/Keeydi/LedgerMonitor-sub000/config"
	"github.com/Keeydi/LedgerMonitor-sub000/database"
	"github.com/Keeydi/LedgerMonitor-sub000/logging"
	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var sampleVehicles = []struct {
	plate, owner, contact string
	channel               models.PreferredChannel
}{
	{"ABC1234", "Juan Dela Cruz", "09171234567", models.PreferSMS},
	{"NBC5678", "Maria Santos", "09181234567", models.PreferViber},
	{"XYZ9012", "Jose Rizal", "+639191234567", models.PreferBoth},
	{"DEF3456", "Ana Reyes", "", models.PreferNone},
}

func main() {
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

	if err := database.AutoMigrate(db); err != nil {
		logrus.Fatalf("❌ Failed to migrate database: %v", err)
	}

	fmt.Println("🌱 Starting seed...")

	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "parking-admin"
		fmt.Println("⚠️  SEED_PASSWORD not set, using the development default")
	}
	seedUser(db, "admin", password, models.RoleAdmin)
	seedUser(db, "enforcer", password, models.RoleAuthority)

	created := 0
	for _, v := range sampleVehicles {
		vehicle := models.Vehicle{
			ID:               uuid.New().String(),
			PlateNumber:      v.plate,
			OwnerName:        v.owner,
			PreferredChannel: v.channel,
		}
		if v.contact != "" {
			contact := v.contact
			vehicle.ContactNumber = &contact
		}
		res := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "plate_number"}}, DoNothing: true}).Create(&vehicle)
		if res.Error != nil {
			logrus.Fatalf("Failed to create vehicle %s: %v", v.plate, res.Error)
		}
		created += int(res.RowsAffected)
	}
	fmt.Printf("✅ Registered %d vehicles\n", created)
}

// seedUser ensures the user exists
func seedUser(db *gorm.DB, username, password, role string) {
	var count int64
	db.Model(&models.User{}).Where("username = ?", username).Count(&count)
	if count > 0 {
		fmt.Printf("⏭️  User %s already exists\n", username)
		return
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logrus.Fatalf("❌ Failed to hash password: %v", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hashedBytes),
		Role:         role,
		Active:       true,
	}
	if err := db.Create(&user).Error; err != nil {
		logrus.Fatalf("❌ Failed to create user %s: %v", username, err)
	}
	fmt.Printf("✅ User %s (%s) seeded\n", username, role)
}
