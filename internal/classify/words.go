package classify

// defaultStopWords are frequent Arabic function words and chat filler that
// never name a character.
var defaultStopWords = []string{
	"في", "من", "على", "إلى", "الى", "عن", "مع", "ضد", "هذا", "هذه", "ذلك", "تلك",
	"التي", "الذي", "الذين", "كان", "كانت", "يكون", "ليس", "لكن", "ولكن", "او", "أو",
	"ثم", "حتى", "اذا", "إذا", "لما", "عند", "بعد", "قبل", "كل", "بعض", "غير", "هو",
	"هي", "هم", "انا", "أنا", "انت", "أنت", "نحن", "هنا", "هناك", "ايش", "شنو", "وش",
	"ليش", "كيف", "متى", "وين", "مين", "يعني", "والله", "طيب", "تمام", "شكرا", "مرحبا",
	"السلام", "عليكم", "اهلا", "الحين", "هلا", "جدا", "كثير", "قليل", "ممكن",
}

// defaultNameSuffixes are endings common in transliterated anime and
// manga names.
var defaultNameSuffixes = []string{
	"تو", "كو", "شي", "ري", "تا", "نو", "رو", "كي", "سو", "ما", "يا", "ون", "تشي", "كا",
}
