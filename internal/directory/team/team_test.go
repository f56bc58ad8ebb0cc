package team

import (
	"errors"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
}

func TestCreateTeam(t *testing.T) {
	created, err := CreateTeam(CreateTeamInput{
		OrganizationID: "org-1",
		Name:           "  Engineering ",
		Description:    "builds things",
	}, fixedClock, func() (string, error) { return "team-1", nil })
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	if created.ID != "team-1" {
		t.Fatalf("id = %q, want team-1", created.ID)
	}
	if created.Name != "Engineering" {
		t.Fatalf("name = %q, want trimmed Engineering", created.Name)
	}
	if created.ParentTeamID != "" {
		t.Fatalf("parent = %q, want empty", created.ParentTeamID)
	}
}

func TestCreateTeamValidation(t *testing.T) {
	if _, err := CreateTeam(CreateTeamInput{Name: "Eng"}, fixedClock, nil); !errors.Is(err, ErrEmptyOrganizationID) {
		t.Fatalf("missing org: err = %v", err)
	}
	if _, err := CreateTeam(CreateTeamInput{OrganizationID: "org-1", Name: "  "}, fixedClock, nil); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("missing name: err = %v", err)
	}
}

func chainLookup(parents map[string]string) ParentLookup {
	return func(teamID string) (string, error) {
		return parents[teamID], nil
	}
}

func TestValidateParentChange(t *testing.T) {
	// root <- a <- b <- c
	parents := map[string]string{
		"a": "root",
		"b": "a",
		"c": "b",
	}

	if err := ValidateParentChange("x", "c", 10, chainLookup(parents)); err != nil {
		t.Fatalf("valid parent rejected: %v", err)
	}
	if err := ValidateParentChange("a", "", 10, nil); err != nil {
		t.Fatalf("clearing parent should not need a lookup: %v", err)
	}
	if err := ValidateParentChange("a", "a", 10, chainLookup(parents)); !errors.Is(err, ErrSelfParent) {
		t.Fatalf("self parent: err = %v", err)
	}
	// Re-parenting root under c would close root<-a<-b<-c<-root.
	if err := ValidateParentChange("root", "c", 10, chainLookup(parents)); !errors.Is(err, ErrParentCycle) {
		t.Fatalf("cycle: err = %v", err)
	}
	// a is an ancestor of c, so c cannot become a's parent.
	if err := ValidateParentChange("a", "c", 10, chainLookup(parents)); !errors.Is(err, ErrParentCycle) {
		t.Fatalf("ancestor cycle: err = %v", err)
	}
}

func TestValidateParentChangeBoundedWalk(t *testing.T) {
	// Pre-existing loop between p and q; the walk must still terminate.
	parents := map[string]string{
		"p": "q",
		"q": "p",
	}
	err := ValidateParentChange("x", "p", 5, chainLookup(parents))
	if !errors.Is(err, ErrParentCycle) {
		t.Fatalf("expected bounded walk to report a cycle, got %v", err)
	}
}

func TestCreateTeamMember(t *testing.T) {
	tm, err := CreateTeamMember(CreateTeamMemberInput{
		TeamID: "team-1",
		UserID: "bob",
		Role:   "lead",
	}, fixedClock, func() (string, error) { return "tm-1", nil })
	if err != nil {
		t.Fatalf("create team member: %v", err)
	}
	if tm.ID != "tm-1" || tm.Role != "lead" {
		t.Fatalf("unexpected team member: %+v", tm)
	}

	if _, err := CreateTeamMember(CreateTeamMemberInput{UserID: "bob"}, fixedClock, nil); err == nil {
		t.Fatal("expected error for missing team id")
	}
}
