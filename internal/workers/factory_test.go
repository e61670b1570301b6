package workers

import "testing"

func TestFactoryRegisterAndBuild(t *testing.T) {
	f := NewFactory[testState]()
	mustRegister := func(name string) {
		t.Helper()
		if err := f.Register(name, func() Action[testState] { return &trailAction{name: name} }); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	mustRegister("parse")
	mustRegister("save")

	if !f.Has("parse") || f.Has("missing") {
		t.Fatal("Has is wrong")
	}

	actions, err := f.Build("parse", "save", "parse")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(actions) != 3 || actions[0].Name() != "parse" || actions[2].Name() != "parse" {
		t.Fatalf("built actions = %v", actions)
	}
}

func TestFactoryRejectsDuplicateRegistration(t *testing.T) {
	f := NewFactory[testState]()
	ctor := func() Action[testState] { return &trailAction{name: "parse"} }
	if err := f.Register("parse", ctor); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := f.Register("parse", ctor); err == nil {
		t.Fatal("duplicate registration must error")
	}
}

func TestFactoryBuildUnknownName(t *testing.T) {
	f := NewFactory[testState]()
	if _, err := f.Build("ghost"); err == nil {
		t.Fatal("unknown action must error")
	}
}

func TestFactoryNamesSorted(t *testing.T) {
	f := NewFactory[testState]()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		n := name
		if err := f.Register(n, func() Action[testState] { return &trailAction{name: n} }); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	names := f.Names()
	if len(names) != 3 || names[0] != "alpha" || names[2] != "zeta" {
		t.Fatalf("Names = %v", names)
	}
}
