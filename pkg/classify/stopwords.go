package classify

var stopWords = toSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can", "had",
	"her", "was", "one", "our", "out", "has", "him", "his", "how", "its", "may",
	"new", "now", "old", "see", "two", "way", "who", "did", "get", "let", "say",
	"she", "too", "use", "yes", "yet", "off", "own", "via", "per", "than", "that",
	"this", "with", "from", "they", "them", "their", "there", "then", "what",
	"when", "where", "which", "while", "will", "would", "could", "should", "have",
	"been", "were", "into", "onto", "over", "under", "about", "after", "before",
	"again", "also", "just", "more", "most", "some", "such", "only", "very",
	"your", "yours", "ours", "each", "other", "these", "those", "being", "does",
	"doing", "because", "until", "against", "between", "through", "during",
	"above", "below", "here", "says", "said", "why", "whom", "both", "few",
	"nor", "same", "don", "didn", "isn", "aren", "wasn", "weren", "won", "upon",
	"amid", "among", "within", "without", "like", "make", "makes", "made",
	"many", "much", "even", "still", "back",
)

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
