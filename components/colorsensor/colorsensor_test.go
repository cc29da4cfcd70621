package colorsensor

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestParseColor(t *testing.T) {
	for _, c := range Colors() {
		parsed, err := ParseColor(c.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, c)
	}

	parsed, err := ParseColor(" red ")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, Red)

	parsed, err = ParseColor("NOCOLOR")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, NoColor)

	_, err = ParseColor("purple")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParseColor("none")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestColorText(t *testing.T) {
	test.That(t, len(Colors()), test.ShouldEqual, 8)
	test.That(t, Brown.String(), test.ShouldEqual, "Brown")
	test.That(t, Color(42).String(), test.ShouldEqual, "Unknown")

	var script []Color
	err := json.Unmarshal([]byte(`["blue", "Yellow", "RED"]`), &script)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, script, test.ShouldResemble, []Color{Blue, Yellow, Red})

	out, err := json.Marshal(script)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `["Blue","Yellow","Red"]`)

	err = json.Unmarshal([]byte(`["mauve"]`), &script)
	test.That(t, err, test.ShouldNotBeNil)
}
