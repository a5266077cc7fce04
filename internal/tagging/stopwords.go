package tagging

import "strings"

// English stop words (spaCy and NLTK lists combined). "us", "on", "off",
// "both" and "give" are kept as content words.
var stopWords = buildStopWords(`
a about above across after afterwards again against ain all almost alone along already also although always am among
amongst amount an and another any anyhow anyone anything anyway anywhere are aren aren't around as at
be became because become becomes becoming been before beforehand behind being below beside besides between beyond bottom
but by ca call can cannot could couldn couldn't d did didn didn't do does doesn doesn't doing don don't done down due
during each eight either eleven else elsewhere empty enough even ever every everyone everything everywhere except few
fifteen fifty first five for former formerly forty four from front full further get go had hadn hadn't has hasn
hasn't have haven haven't having he hence her here hereafter hereby herein hereupon hers herself him himself his how
however hundred i if in indeed into is isn isn't it it's its itself just keep last latter latterly least less ll m
ma made make many may me meanwhile might mightn mightn't mine more moreover most mostly move much must mustn mustn't
my myself name namely needn needn't neither never nevertheless next nine no nobody none noone nor not nothing now
nowhere o of often once one only onto or other others otherwise our ours ourselves out over own part per perhaps
please put quite rather re really regarding s same say see seem seemed seeming seems serious several shan shan't she
she's should should've shouldn shouldn't show side since six sixty so some somehow someone something sometime
sometimes somewhere still such t take ten than that that'll the their theirs them themselves then thence there
thereafter thereby therefore therein thereupon these they third this those though three through throughout thru thus
to together too top toward towards twelve twenty two under unless until up upon used using various ve very via was
wasn wasn't we well were weren weren't what whatever when whence whenever where whereafter whereas whereby wherein
whereupon wherever whether which while whither who whoever whole whom whose why will with within without won won't
would wouldn wouldn't y yet you you'd you'll you're you've your yours yourself yourselves
`)

func buildStopWords(list string) map[string]bool {
	m := map[string]bool{}
	for _, w := range strings.Fields(list) {
		m[w] = true
	}
	return m
}

// IsStopWord reports whether the lowercased word is a stop word.
func IsStopWord(word string) bool {
	return stopWords[strings.ToLower(word)]
}
