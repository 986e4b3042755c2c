package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// gasBand 是某类操作 Gas 估算的均匀分布区间（单位 ETH）。
type gasBand struct {
	min, max float64
}

func (b gasBand) draw(r Randomness) string {
	return strconv.FormatFloat(b.min+r.Float64()*(b.max-b.min), 'f', 6, 64)
}

type vocabulary struct {
	action   Action
	pattern  *regexp.Regexp
	gas      gasBand
	protocol func(lower string) string
	build    func(m []string) Step
}

var vocabularies = []vocabulary{
	{
		action:  ActionSwap,
		pattern: regexp.MustCompile(`(?i)swap\s+(\d+(?:\.\d+)?)\s+(\w+)\s+(?:for|to)\s+(\w+)`),
		gas:     gasBand{0.002, 0.007},
		protocol: func(lower string) string {
			if strings.Contains(lower, "uniswap") {
				return "Uniswap V3"
			}
			return "DEX"
		},
		build: func(m []string) Step {
			return Step{TokenIn: strings.ToUpper(m[2]), TokenOut: strings.ToUpper(m[3]), Amount: m[1]}
		},
	},
	{
		action:  ActionStake,
		pattern: regexp.MustCompile(`(?i)stake\s+(\d+(?:\.\d+)?)\s+(\w+)`),
		gas:     gasBand{0.001, 0.004},
		protocol: func(lower string) string {
			if strings.Contains(lower, "lido") {
				return "Lido"
			}
			return "Staking Vault"
		},
		build: func(m []string) Step {
			return Step{TokenIn: strings.ToUpper(m[2]), Amount: m[1]}
		},
	},
	{
		action:   ActionSupply,
		pattern:  regexp.MustCompile(`(?i)(?:supply|lend)\s+(\d+(?:\.\d+)?)\s+(\w+)`),
		gas:      gasBand{0.002, 0.006},
		protocol: lendingProtocol,
		build: func(m []string) Step {
			return Step{TokenIn: strings.ToUpper(m[2]), Amount: m[1]}
		},
	},
	{
		action:   ActionBorrow,
		pattern:  regexp.MustCompile(`(?i)borrow\s+(\d+(?:\.\d+)?)\s+(\w+)`),
		gas:      gasBand{0.002, 0.006},
		protocol: lendingProtocol,
		build: func(m []string) Step {
			return Step{TokenOut: strings.ToUpper(m[2]), Amount: m[1]}
		},
	},
}

func lendingProtocol(lower string) string {
	if strings.Contains(lower, "aave") {
		return "Aave V3"
	}
	return "Compound"
}

// FallbackStep 是没有识别到任何操作时返回的默认步骤，保证计划永不为空。
var FallbackStep = Step{
	Action:       ActionSwap,
	Protocol:     "Uniswap V3",
	TokenIn:      "USDC",
	TokenOut:     "ETH",
	Amount:       "100",
	EstimatedGas: "0.003",
}

// Extractor 通过模式匹配把自然语言转换为执行步骤。
type Extractor struct {
	rand Randomness
}

// NewExtractor 创建 Extractor。rand 为 nil 时使用基于时间的随机源。
func NewExtractor(rand Randomness) *Extractor {
	if rand == nil {
		rand = NewRandomness(0)
	}
	return &Extractor{rand: rand}
}

// Extract 按 swap、stake、supply、borrow 的固定顺序匹配文本。各类模式互不排斥，
// 一句话可以产生多个步骤；每类最多取第一个匹配。
func (e *Extractor) Extract(text string) []Step {
	lower := strings.ToLower(text)
	steps := make([]Step, 0, len(vocabularies))
	for _, v := range vocabularies {
		m := v.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		step := v.build(m)
		step.Action = v.action
		step.Protocol = v.protocol(lower)
		step.EstimatedGas = v.gas.draw(e.rand)
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		steps = append(steps, FallbackStep)
	}
	return steps
}
