package triggers

// stopwords never start, end or appear inside a trigger phrase.
var stopwords = toSet(
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and", "any",
	"are", "as", "at", "be", "because", "been", "before", "being", "below", "between", "both",
	"but", "by", "can", "could", "did", "do", "does", "doing", "done", "down", "during", "each",
	"either", "etc", "even", "ever", "every", "few", "for", "from", "further", "get", "gets",
	"got", "had", "has", "have", "having", "he", "her", "here", "hers", "herself", "him",
	"himself", "his", "how", "however", "i", "if", "in", "into", "is", "it", "its", "itself",
	"just", "let", "lets", "like", "made", "make", "many", "may", "me", "might", "more", "most",
	"much", "must", "my", "myself", "need", "needs", "no", "nor", "not", "now", "of", "off",
	"on", "once", "one", "only", "or", "other", "our", "ours", "ourselves", "out", "over",
	"own", "per", "same", "see", "she", "should", "so", "some", "still", "such", "than", "that",
	"the", "their", "theirs", "them", "themselves", "then", "there", "these", "they", "this",
	"those", "through", "thus", "to", "too", "under", "until", "up", "upon", "us", "use",
	"used", "uses", "using", "very", "via", "was", "we", "were", "what", "when", "where",
	"whether", "which", "while", "who", "whom", "why", "will", "with", "within", "without",
	"would", "yes", "yet", "you", "your", "yours", "yourself", "yourselves",
)

// commonWords are frequent in project notes and carry little signal on their
// own. They may appear in phrases but are weighted down.
var commonWords = toSet(
	"add", "added", "code", "change", "changes", "data", "file", "files", "fix", "fixed",
	"function", "new", "note", "notes", "project", "session", "set", "spec", "summary",
	"thing", "things", "time", "todo", "update", "updated", "value", "way", "work", "working",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
