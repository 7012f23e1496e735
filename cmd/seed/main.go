// Command seed fills a local database with demo users and venues and prints
// a token for each user.
package main

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm/clause"

	"lingomeet/internal/app"
	"lingomeet/internal/database"
	"lingomeet/internal/domain"
	jwtsvc "lingomeet/internal/pkg/jwt"
)

func main() {
	env, err := app.Bootstrap()
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	db := env.DB

	log.Println("Running migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	users := []domain.User{
		{Email: "admin@lingomeet.eu", Name: "Admin", Role: domain.RoleAdmin},
		{Email: "organizer@lingomeet.eu", Name: "Olga Organizer", Role: domain.RoleOrganizer},
		{Email: "anna@lingomeet.eu", Name: "Anna", Role: domain.RoleUser},
		{Email: "ben@lingomeet.eu", Name: "Ben", Role: domain.RoleUser},
	}
	for i := range users {
		// existing rows are kept, so the seed can run repeatedly
		if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).Create(&users[i]).Error; err != nil {
			log.Fatalf("create user %s: %v", users[i].Email, err)
		}
		if err := db.Where("email = ?", users[i].Email).First(&users[i]).Error; err != nil {
			log.Fatalf("load user %s: %v", users[i].Email, err)
		}
	}

	venues := []domain.Venue{
		{Name: "Café Babel", City: "Berlin", Address: "Torstraße 1", IsActive: true},
		{Name: "Tandem Bar", City: "Lisbon", Address: "Rua Augusta 10", IsActive: true},
	}
	for i := range venues {
		if err := db.Where(domain.Venue{Name: venues[i].Name}).FirstOrCreate(&venues[i]).Error; err != nil {
			log.Fatalf("create venue %s: %v", venues[i].Name, err)
		}
	}

	j := jwtsvc.New(env.Config.JWTSecret, 30*24*time.Hour)
	for _, u := range users {
		token, err := j.GenerateToken(u.ID, u.Role)
		if err != nil {
			log.Fatalf("token for %s: %v", u.Email, err)
		}
		fmt.Printf("%-10s id=%d %s\n  %s\n", u.Role, u.ID, u.Email, token)
	}
	for _, v := range venues {
		fmt.Printf("venue id=%d %s (%s)\n", v.ID, v.Name, v.City)
	}
	log.Println("Seed completed")
}
