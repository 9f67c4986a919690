package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromTextFencedBlock(t *testing.T) {
	text := "Sure! Here is the result you asked for:\n\n```json\n{\"a\": 1, \"b\": \"two\"}\n```\n\nLet me know if you need anything else."

	raw, ok := FromText(text)
	assert.True(t, ok)
	assert.JSONEq(t, `{"a":1,"b":"two"}`, string(raw))
}

func TestFromTextFencedBlockNoLanguageTag(t *testing.T) {
	text := "```\n[1, 2, 3]\n```"

	raw, ok := FromText(text)
	assert.True(t, ok)
	assert.JSONEq(t, `[1,2,3]`, string(raw))
}

func TestFromTextObjectWithSurroundingProse(t *testing.T) {
	text := `Based on my analysis, the answer is {"verdict": "yes", "confidence": 0.9} which should help.`

	obj := Object(text)
	assert.NotNil(t, obj)
	assert.Equal(t, "yes", obj["verdict"])
	assert.Equal(t, 0.9, obj["confidence"])
}

func TestFromTextBracesInsideStrings(t *testing.T) {
	// 字符串字面量里的括号和转义引号不能干扰深度扫描
	text := `prefix {"msg": "use \"{}\" carefully", "n": 1} suffix`

	obj := Object(text)
	assert.NotNil(t, obj)
	assert.Equal(t, `use "{}" carefully`, obj["msg"])
	assert.Equal(t, 1.0, obj["n"])
}

func TestFromTextNestedObject(t *testing.T) {
	text := `result: {"outer": {"inner": [1, {"deep": true}]}} done`

	obj := Object(text)
	assert.NotNil(t, obj)
	outer := obj["outer"].(map[string]any)
	assert.NotNil(t, outer["inner"])
}

func TestFromTextArray(t *testing.T) {
	text := "The items are: [\"x\", \"y\", \"z\"] in order."

	arr := Array(text)
	assert.Equal(t, []any{"x", "y", "z"}, arr)
}

func TestFromTextBareJSON(t *testing.T) {
	raw, ok := FromText(`{"plain": true}`)
	assert.True(t, ok)
	assert.JSONEq(t, `{"plain":true}`, string(raw))
}

func TestFromTextNoJSON(t *testing.T) {
	_, ok := FromText("I could not produce a structured answer, sorry.")
	assert.False(t, ok)

	_, ok = FromText("")
	assert.False(t, ok)

	_, ok = FromText("   \n\t  ")
	assert.False(t, ok)

	// 有括号但不是合法 JSON
	_, ok = FromText("f(x) = {x | x > 0}")
	assert.False(t, ok)
}

func TestFromTextIncompleteJSON(t *testing.T) {
	_, ok := FromText(`{"truncated": "the model stopped mid`)
	assert.False(t, ok)
}

func TestObjectOnArrayInput(t *testing.T) {
	// 抽出的是数组时 Object 返回 nil，不 panic
	assert.Nil(t, Object("[1,2,3]"))
	// 反之亦然
	assert.Nil(t, Array(`{"a":1}`))
}

func TestFromTextFencedTakesPriority(t *testing.T) {
	// 围栏块优先于散落在正文里的 JSON
	text := "Ignore {\"wrong\": 1} and use:\n```json\n{\"right\": 2}\n```"

	obj := Object(text)
	assert.NotNil(t, obj)
	assert.Equal(t, 2.0, obj["right"])
	assert.NotContains(t, obj, "wrong")
}
