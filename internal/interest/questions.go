package interest

// questionScript is the fixed ordered list of onboarding questions the
// companion uses to proactively elicit interests. The cursor over this
// script is the askedQuestions counter.
var questionScript = []string{
	"您平时喜欢做些什么消遣呢？",
	"您喜欢看什么类型的电视节目或者戏曲吗？",
	"您平时会出门散步或者锻炼身体吗？",
	"您年轻的时候有什么特别的爱好吗？",
	"您喜欢养花草或者小动物吗？",
	"您平时喜欢听什么样的音乐或者广播？",
	"您对下棋、打牌这类活动感兴趣吗？",
	"您喜欢做饭吗？有没有什么拿手菜？",
	"您喜欢出门旅游吗？有没有特别想去的地方？",
	"您平时看书或者读报纸吗？喜欢哪类内容？",
}

// fallbackQuestion is returned once the script is exhausted; the cursor
// saturates and repeated calls keep returning this same prompt.
const fallbackQuestion = "您还有其他兴趣爱好想和我分享吗？"
