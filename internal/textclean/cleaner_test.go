package textclean

import (
	"strings"
	"testing"
)

func TestCleanEmptyInput(t *testing.T) {
	t.Parallel()

	if got := Clean(""); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if got := Clean("   \n  "); got != "" {
		t.Fatalf("expected empty output for whitespace, got %q", got)
	}
}

func TestCleanRemovesBoilerplateBlocks(t *testing.T) {
	t.Parallel()

	input := `<html><head>
<script>var tracking = true;</script>
<style>body { color: red; }</style>
</head><body>
<nav>Home | About</nav>
<header>Site header</header>
<article><p>The actual story text.</p></article>
<aside>Related links</aside>
<footer>Copyright</footer>
<!-- build: 42 -->
</body></html>`

	got := Clean(input)
	if got != "The actual story text." {
		t.Fatalf("expected only the story text, got %q", got)
	}
}

func TestCleanPreservesParagraphStructure(t *testing.T) {
	t.Parallel()

	input := "<div><p>First paragraph.</p><p>Second paragraph.</p></div>"
	got := Clean(input)

	want := "First paragraph.\n\nSecond paragraph."
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCleanDecodesEntities(t *testing.T) {
	t.Parallel()

	got := Clean("<p>Fish &amp; Chips &#8217;s best</p>")
	if got != "Fish & Chips ’s best" {
		t.Fatalf("expected decoded entities, got %q", got)
	}
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	got := Clean("one   two\t\tthree\n\n\n\n\nfour")
	want := "one two three\n\nfour"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCleanTrimsEachLine(t *testing.T) {
	t.Parallel()

	got := Clean("  leading\n trailing  \n")
	if strings.Contains(got, " \n") || strings.Contains(got, "\n ") {
		t.Fatalf("expected trimmed lines, got %q", got)
	}
}

func TestCleanDeterministic(t *testing.T) {
	t.Parallel()

	input := "<article><h1>Title &amp; more</h1><p>Body   text.</p></article>"
	if Clean(input) != Clean(input) {
		t.Fatal("cleaning must be deterministic")
	}
}

func TestCleanPlainTextPassesThrough(t *testing.T) {
	t.Parallel()

	got := Clean("Just plain text, no markup.")
	if got != "Just plain text, no markup." {
		t.Fatalf("expected pass-through, got %q", got)
	}
}
