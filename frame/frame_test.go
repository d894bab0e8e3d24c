package frame

import "testing"

func TestByName(t *testing.T) {
	f, err := ByName("Jupiter-barycenter")
	if err != nil {
		t.Fatal(err)
	}
	if !f.Equals(Jupiter) {
		t.Fatalf("resolved %v", f)
	}
	if _, err := ByName("Vulcan"); err == nil {
		t.Fatal("unknown frame resolved")
	}
}

func TestFrameEquality(t *testing.T) {
	// EME2000 and the Earth frame share a body but are distinct frames.
	if Earth.Equals(EMEJ2000) {
		t.Fatal("Earth and EME2000 compared equal")
	}
	if !Earth.Equals(Frame{Name: "Earth"}) {
		t.Fatal("name-equality broken")
	}
}

func TestBodyCenteredGM(t *testing.T) {
	for _, f := range []Frame{Sun, Venus, Earth, Moon, Mars, Jupiter, Saturn, Uranus, Pluto} {
		if f.GM <= 0 {
			t.Fatalf("%s has non-positive GM", f.Name)
		}
		if f.Body == "" {
			t.Fatalf("%s has no body", f.Name)
		}
	}
	if Sun.GM < Jupiter.GM || Jupiter.GM < Earth.GM || Earth.GM < Moon.GM {
		t.Fatal("GM ordering implausible")
	}
}
