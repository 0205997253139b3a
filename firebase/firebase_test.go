package firebase

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/auth"
)

func TestLessonKey(t *testing.T) {
	tests := []struct {
		level, week, expected string
	}{
		{"beginner", "1", "beginner_week_01"},
		{"Intermediate", "week3", "intermediate_week_03"},
		{"advanced", "12", "advanced_week_12"},
		{"beginner", "", "beginner_week_01"},
	}

	for _, tt := range tests {
		if got := LessonKey(tt.level, tt.week); got != tt.expected {
			t.Errorf("LessonKey(%q, %q): expected %q, got %q", tt.level, tt.week, tt.expected, got)
		}
	}
}

var errNoUser = errors.New("no user record found")

type fakeUserAdmin struct {
	byEmail map[string]string
	created []string
}

func (f *fakeUserAdmin) GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	uid, ok := f.byEmail[email]
	if !ok {
		return nil, errNoUser
	}
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: uid, Email: email}}, nil
}

func (f *fakeUserAdmin) CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error) {
	uid := "created-" + string(rune('0'+len(f.created)))
	f.created = append(f.created, uid)
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: uid}}, nil
}

func newTestDirectory(users *fakeUserAdmin) *Directory {
	d := NewDirectory(users)
	d.isNotFound = func(err error) bool { return errors.Is(err, errNoUser) }
	return d
}

func TestLookupOrCreateByEmailExisting(t *testing.T) {
	users := &fakeUserAdmin{byEmail: map[string]string{"a@b.com": "uid-a"}}
	d := newTestDirectory(users)

	uid, created, err := d.LookupOrCreateByEmail(context.Background(), "a@b.com", "A")
	if err != nil {
		t.Fatalf("LookupOrCreateByEmail failed: %v", err)
	}
	if uid != "uid-a" || created {
		t.Errorf("Expected existing uid-a, got %s (created=%v)", uid, created)
	}
	if len(users.created) != 0 {
		t.Error("Expected no user to be created")
	}
}

func TestLookupOrCreateByEmailCreates(t *testing.T) {
	users := &fakeUserAdmin{byEmail: map[string]string{}}
	d := newTestDirectory(users)

	uid, created, err := d.LookupOrCreateByEmail(context.Background(), "new@b.com", "New Payer")
	if err != nil {
		t.Fatalf("LookupOrCreateByEmail failed: %v", err)
	}
	if !created || uid != "created-0" {
		t.Errorf("Expected a created user, got %s (created=%v)", uid, created)
	}
}

func TestLookupOrCreateByEmailRequiresEmail(t *testing.T) {
	d := newTestDirectory(&fakeUserAdmin{})
	if _, _, err := d.LookupOrCreateByEmail(context.Background(), " ", ""); err == nil {
		t.Error("Expected an error for an empty email")
	}
}
