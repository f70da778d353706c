package version_test

import (
	"testing"

	"segue/internal/version"
)

func TestCompareOrdering(t *testing.T) {
	cases := []struct {
		a    string
		b    string
		want int
	}{
		{a: "1.0.0", b: "1.0.0", want: 0},
		{a: "1.0.1", b: "1.0.0", want: 1},
		{a: "1.1.0", b: "1.0.9", want: 1},
		{a: "2.0.0", b: "1.9.9", want: 1},
		{a: "1.0.1", b: "1.0.1-test9", want: 1},
		{a: "1.0.1-test9", b: "1.0.1", want: -1},
		{a: "1.0.1-test2", b: "1.0.1-test1", want: 1},
		{a: "1.0.0+b1", b: "1.0.0+b2", want: 0},
		{a: "1.0.1-test9", b: "1.0.1-test10", want: 1},
	}

	for _, tc := range cases {
		got := version.Compare(version.MustParse(tc.a), version.MustParse(tc.b))
		if got != tc.want {
			t.Fatalf("Compare(%s, %s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestEligible(t *testing.T) {
	cases := []struct {
		name      string
		current   string
		candidate string
		channel   version.Channel
		want      bool
	}{
		{name: "stable rejects prerelease", current: "1.0.1", candidate: "1.0.1-test9", channel: version.ChannelStable, want: false},
		{name: "stable rejects newer-base prerelease", current: "1.0.0", candidate: "1.1.0-test1", channel: version.ChannelStable, want: false},
		{name: "stable accepts greater base", current: "1.0.0", candidate: "1.0.1", channel: version.ChannelStable, want: true},
		{name: "equal versions not offered", current: "1.0.1", candidate: "1.0.1", channel: version.ChannelStable, want: false},
		{name: "test accepts newer prerelease", current: "1.0.0-test2", candidate: "1.0.1-test9", channel: version.ChannelTest, want: true},
		{name: "test promotes stable over own prerelease", current: "1.0.1-test9", candidate: "1.0.1", channel: version.ChannelTest, want: true},
		{name: "test rejects older prerelease of same base", current: "1.0.1", candidate: "1.0.1-test9", channel: version.ChannelTest, want: false},
		{name: "older base rejected", current: "1.2.0", candidate: "1.1.9", channel: version.ChannelStable, want: false},
	}

	for _, tc := range cases {
		got := version.Eligible(version.MustParse(tc.current), version.MustParse(tc.candidate), tc.channel)
		if got != tc.want {
			t.Fatalf("%s: Eligible(%s, %s, %s) = %v, want %v", tc.name, tc.current, tc.candidate, tc.channel, got, tc.want)
		}
	}
}

func TestParseChannel(t *testing.T) {
	if ch, ok := version.ParseChannel(" Stable "); !ok || ch != version.ChannelStable {
		t.Fatalf("ParseChannel stable: %v %v", ch, ok)
	}
	if ch, ok := version.ParseChannel("test"); !ok || ch != version.ChannelTest {
		t.Fatalf("ParseChannel test: %v %v", ch, ok)
	}
	if _, ok := version.ParseChannel("nightly"); ok {
		t.Fatal("ParseChannel accepted unknown channel")
	}
}

func TestChannelFor(t *testing.T) {
	if ch := version.ChannelFor(version.MustParse("1.0.1")); ch != version.ChannelStable {
		t.Fatalf("ChannelFor stable = %s", ch)
	}
	if ch := version.ChannelFor(version.MustParse("1.0.1-test9")); ch != version.ChannelTest {
		t.Fatalf("ChannelFor prerelease = %s", ch)
	}
}
