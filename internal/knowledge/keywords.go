package knowledge

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeywordExtractor picks the single best topic term from free text. An empty term with a nil
// error means the text has no usable topic.
type KeywordExtractor interface {
	TopKeyword(ctx context.Context, text string) (string, error)
}

// HeuristicExtractor ranks stopword-filtered words by capitalisation. Runs of capitalised words
// inside a sentence ("Julius Caesar", "Römisches Reich") are treated as one proper-noun phrase
// and outrank single words.
type HeuristicExtractor struct {
	MinLength int
}

type token struct {
	word          string
	sentenceStart bool
	breakBefore   bool
}

type candidate struct {
	term  string
	score int
}

func (e HeuristicExtractor) TopKeyword(_ context.Context, text string) (string, error) {
	minLength := e.MinLength
	if minLength <= 0 {
		minLength = 3
	}

	var best candidate
	consider := func(c candidate) {
		if c.score > best.score {
			best = c
		}
	}

	var run []string
	runLead := false
	flush := func() {
		switch {
		case len(run) == 0:
		case len(run) == 1 && runLead:
			consider(candidate{term: run[0], score: singleScore(run[0], true)})
		default:
			consider(candidate{term: strings.Join(run, " "), score: 2*len(run) + 1})
		}
		run, runLead = nil, false
	}

	for _, tok := range tokenize(text) {
		if tok.breakBefore {
			flush()
		}

		lower := strings.ToLower(tok.word)
		if _, stop := stopwords[lower]; stop || utf8.RuneCountInString(tok.word) < minLength || isNumber(tok.word) {
			flush()
			continue
		}

		first, _ := utf8.DecodeRuneInString(tok.word)
		capital := unicode.IsUpper(first)

		switch {
		case capital && !tok.sentenceStart:
			run = append(run, tok.word)
		case capital:
			flush()
			run, runLead = []string{tok.word}, true
		default:
			flush()
			consider(candidate{term: tok.word, score: singleScore(tok.word, false)})
		}
	}
	flush()

	return best.term, nil
}

func singleScore(word string, capital bool) int {
	score := 1
	if capital {
		score++
	}
	if utf8.RuneCountInString(word) >= 7 {
		score++
	}
	return score
}

func tokenize(text string) []token {
	var tokens []token
	var b strings.Builder
	sentenceStart, breakBefore := true, false

	emit := func() {
		word := strings.Trim(b.String(), "-'’")
		word = strings.TrimSuffix(strings.TrimSuffix(word, "'s"), "’s")
		b.Reset()
		if word == "" {
			return
		}
		tokens = append(tokens, token{word: word, sentenceStart: sentenceStart, breakBefore: breakBefore})
		sentenceStart, breakBefore = false, false
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '-' || r == '\'' || r == '’') && b.Len() > 0:
			b.WriteRune(r)
		default:
			emit()
			switch {
			case r == '.' || r == '!' || r == '?' || r == '\n' || r == ':':
				sentenceStart, breakBefore = true, true
			case !unicode.IsSpace(r):
				breakBefore = true
			}
		}
	}
	emit()

	return tokens
}

func isNumber(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

var stopwords = func() map[string]struct{} {
	words := strings.Fields(`
		the and for are but not you all any can had her was one our out has him his how its may
		new now old see two who did yes yet she too use about above after again also been before
		being below between both could does doing down during each few from further have having
		here hers herself himself into itself just more most myself only other ought over own same
		should some such than that their theirs them themselves then there these they this those
		through under until very what when where which while whom why will with would your yours
		yourself please tell explain describe know think want wonder like give show something
		anything everything someone people thing things much many really quite
		der die das den dem des ein eine einer eines einem einen und oder aber nicht ist sind war
		waren wird werden wurde wurden hat haben hatte sein seine ihr ihre ich mich mir wir uns
		euch sie ihm ihn was wer wie wann warum wieso weshalb welche welcher welches mit von vom
		zum zur bei aus auf für über unter nach vor durch gegen ohne auch noch schon sehr mehr
		bitte erzähl erzähle erkläre erklär kannst könntest weißt etwas alles nichts jemand man
		dass doch mal gibt geben sagen sag zeig
	`)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()
