package cpuarch

import "testing"

func TestDecodeLeaf1(t *testing.T) {
	cases := []struct {
		name       string
		eax        uint32
		wantFamily int
		wantModel  int
	}{
		// 0x306F2 is the Haswell-EP signature: family=6, model=0x3F.
		{"haswell-ep", 0x000306F2, 6, 0x3F},
		// 0x806F8 is the Sapphire Rapids signature: family=6, model=0x8F.
		{"sapphire-rapids", 0x000806F8, 6, 0x8F},
		// Sandy Bridge client: family=6, model=0x2A.
		{"sandy-bridge", 0x000206A7, 6, 0x2A},
		// Extended family kicks in when the base family is 0xF.
		{"extended-family", 0x00100F43, 0x10, 0x04},
	}

	for _, c := range cases {
		family, model := decodeLeaf1(c.eax)
		if family != c.wantFamily || model != c.wantModel {
			t.Errorf("%s: decodeLeaf1(%#x) = (%d, %#x), want (%d, %#x)",
				c.name, c.eax, family, model, c.wantFamily, c.wantModel)
		}
	}
}
