package firebase

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/LaithMimi/blendarchatbot2/services"
)

const materialsCollection = "materials"

// LessonKey is the id prefix shared by a lesson's materials, for example
// "beginner_week_03"
func LessonKey(level, week string) string {
	return fmt.Sprintf("%s_week_%s", strings.ToLower(strings.TrimSpace(level)), services.NormalizeWeek(week))
}

// Materials reads lesson materials from Firestore
type Materials struct {
	client *firestore.Client
}

// NewMaterials creates a material source over a Firestore client
func NewMaterials(client *firestore.Client) *Materials {
	return &Materials{client: client}
}

// Materials returns every document whose id starts with the lesson key
func (m *Materials) Materials(ctx context.Context, level, week string) ([]services.Material, error) {
	key := LessonKey(level, week)

	iter := m.client.Collection(materialsCollection).
		Where("id", ">=", key).
		Where("id", "<", key+"_z").
		Documents(ctx)
	defer iter.Stop()

	var materials []services.Material
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read materials for %s: %w", key, err)
		}
		materials = append(materials, services.Material(doc.Data()))
	}

	return materials, nil
}
