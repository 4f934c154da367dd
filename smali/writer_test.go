package smali

import "testing"

func TestWriteClass(t *testing.T) {
	c := &Class{
		Name:       "Lcom/example/Main;",
		Modifiers:  []Modifier{Public, Final},
		Super:      "Ljava/lang/Object;",
		Interfaces: []string{"Ljava/lang/Runnable;"},
		Fields:     []Field{{Decl: ".field private count:I"}},
	}
	c.AddMethod(Synthesize("run", []Modifier{Public}, Signature{Return: Void}, 1, []Entry{
		Directive{Text: ".line 3"},
		Instruction{Text: "const/4 v0, 0x0"},
		Instruction{Text: "packed-switch v0, :pswitch_data_0"},
		Label{Name: "pswitch_0"},
		Instruction{Text: "return-void"},
		Label{Name: "pswitch_data_0"},
		Directive{Text: ".packed-switch 0x0"},
		Label{Name: "pswitch_0"},
		Directive{Text: ".end packed-switch"},
	}))

	want := `.class public final Lcom/example/Main;
.super Ljava/lang/Object;

# interfaces
.implements Ljava/lang/Runnable;

# fields
.field private count:I

# methods
.method public run()V
    .locals 1

    .line 3
    const/4 v0, 0x0
    packed-switch v0, :pswitch_data_0

    :pswitch_0
    return-void

    :pswitch_data_0
    .packed-switch 0x0
    :pswitch_0
    .end packed-switch
.end method
`
	if got := c.String(); got != want {
		t.Errorf("String() =\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteEmptyBody(t *testing.T) {
	c := &Class{Name: "LFoo;"}
	c.AddMethod(&Method{Name: "<clinit>", Modifiers: []Modifier{Static, Constructor}, Signature: Signature{Return: Void}})

	want := ".class LFoo;\n\n# methods\n.method static constructor <clinit>()V\n    .locals 0\n.end method\n"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
