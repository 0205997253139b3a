package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/LaithMimi/blendarchatbot2/config"
	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
)

// App holds the Firebase clients the server uses
type App struct {
	Auth      *auth.Client
	Firestore *firestore.Client
}

// NewApp initializes Firebase from a service account file, inline JSON, or
// application default credentials, in that order. The Firestore client is
// only created when materials are enabled.
func NewApp(ctx context.Context, cfg config.FirebaseConfig) (*App, error) {
	log := logger.GetLogger("firebase")

	var opts []option.ClientOption
	switch {
	case cfg.ServiceAccountPath != "":
		opts = append(opts, option.WithCredentialsFile(cfg.ServiceAccountPath))
		log.Info("Initializing Firebase with service account file")
	case cfg.ServiceAccountJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
		log.Info("Initializing Firebase with service account JSON")
	default:
		log.Info("Initializing Firebase with application default credentials")
	}

	var appConfig *firebase.Config
	if cfg.ProjectID != "" {
		appConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase init failed: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth client init failed: %w", err)
	}

	a := &App{Auth: authClient}
	if cfg.MaterialsEnabled {
		fs, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("firestore client init failed: %w", err)
		}
		a.Firestore = fs
	}

	return a, nil
}

// Close releases the Firestore client
func (a *App) Close() error {
	if a == nil || a.Firestore == nil {
		return nil
	}
	return a.Firestore.Close()
}
