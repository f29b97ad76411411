// Command createadmin adds an administrator account.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"ragdesk/internal/app"
	"ragdesk/internal/bootstrap"
)

func main() {
	username := flag.String("username", "", "admin username")
	email := flag.String("email", "", "admin email")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password (defaults to $ADMIN_PASSWORD)")
	flag.Parse()

	if *username == "" || *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	a, err := bootstrap.New(context.Background(), bootstrap.WithoutWorker())
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer a.Close()

	admin, err := a.Services.Auth.CreateAdmin(app.CreateAdminInput{
		Username: *username,
		Email:    *email,
		Password: *password,
	})
	if err != nil {
		log.Fatalf("create admin failed: %v", err)
	}
	fmt.Printf("admin %q created with id %d\n", admin.Username, admin.ID)
}
